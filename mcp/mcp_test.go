package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteForwardsToOnlineService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"ack": "ok"})
	}))
	defer srv.Close()

	registry := NewRegistry()
	registry.Register(ServiceEntry{Name: "emailer", BaseEndpoint: srv.URL, Actions: []string{"send"}})

	var audited []map[string]interface{}
	router := New(registry, WithAudit(func(_ context.Context, event map[string]interface{}) {
		audited = append(audited, event)
	}))

	out, err := router.Route(context.Background(), "emailer", "send", map[string]string{"to": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ack": "ok"}, out)
	require.Len(t, audited, 1)
	assert.Equal(t, true, audited[0]["success"])
}

func TestRouteUnknownServiceErrors(t *testing.T) {
	router := New(NewRegistry())
	_, err := router.Route(context.Background(), "ghost", "send", nil)
	assert.Error(t, err)
}

func TestRouteFallsBackWhenOfflineAndFallbackEnabled(t *testing.T) {
	registry := NewRegistry()
	registry.Register(ServiceEntry{Name: "emailer", BaseEndpoint: "http://127.0.0.1:1", FallbackEnabled: true})

	router := New(registry, WithDegradedResponder("emailer", func(_ context.Context, action string, _ interface{}) (interface{}, error) {
		return map[string]string{"status": "email queued"}, nil
	}))

	out, err := router.Route(context.Background(), "emailer", "send", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "email queued"}, out)
}

func TestRouteErrorsWhenOfflineAndNoFallback(t *testing.T) {
	registry := NewRegistry()
	registry.Register(ServiceEntry{Name: "emailer", BaseEndpoint: "http://127.0.0.1:1"})

	router := New(registry)
	_, err := router.Route(context.Background(), "emailer", "send", nil)
	assert.Error(t, err)
}
