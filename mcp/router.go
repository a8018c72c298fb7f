package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/itsneelabh/taskforge/core"
	"github.com/itsneelabh/taskforge/telemetry"
)

// AuditFunc emits an mcp_call audit event.
type AuditFunc func(ctx context.Context, event map[string]interface{})

// DegradedResponder produces a service-specific degraded response when
// a service is offline and its fallback is enabled (e.g. "email
// queued" for the email service).
type DegradedResponder func(ctx context.Context, action string, payload interface{}) (interface{}, error)

// Router forwards named action calls to registered backend services,
// health-probing on demand and falling back when a service is offline.
type Router struct {
	registry   *Registry
	client     *http.Client
	logger     core.Logger
	audit      AuditFunc
	degraded   map[string]DegradedResponder
	probeEvery time.Duration
}

// Option configures a Router.
type Option func(*Router)

func WithLogger(l core.Logger) Option {
	return func(r *Router) {
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			r.logger = cal.WithComponent("mcp")
			return
		}
		r.logger = l
	}
}

func WithAudit(fn AuditFunc) Option { return func(r *Router) { r.audit = fn } }

func WithHTTPClient(c *http.Client) Option { return func(r *Router) { r.client = c } }

// WithDegradedResponder registers a service-specific fallback response
// function, used when the service is offline and its FallbackEnabled
// flag is set.
func WithDegradedResponder(service string, fn DegradedResponder) Option {
	return func(r *Router) { r.degraded[service] = fn }
}

// New builds a Router over registry. The HTTP client is wrapped with
// otelhttp so every proxied call emits a span, mirroring how the
// teacher instruments its own HTTP server.
func New(registry *Registry, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:     core.NoOpLogger{},
		degraded:   make(map[string]DegradedResponder),
		probeEvery: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Probe performs a health check against a registered service's
// "/health" endpoint; a 200 response means online.
func (r *Router) Probe(ctx context.Context, name string) (Status, error) {
	entry, ok := r.registry.Lookup(name)
	if !ok {
		return "", fmt.Errorf("mcp: %w: %q", core.ErrServiceNotFound, name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.BaseEndpoint+"/health", nil)
	if err != nil {
		return "", fmt.Errorf("mcp: build health probe request: %w", err)
	}
	resp, err := r.client.Do(req)
	now := time.Now().UTC()
	if err != nil || resp.StatusCode != http.StatusOK {
		r.registry.SetStatus(name, StatusOffline, now)
		return StatusOffline, nil
	}
	defer resp.Body.Close()
	r.registry.SetStatus(name, StatusOnline, now)
	return StatusOnline, nil
}

// Route forwards payload to service/action and returns the decoded
// response. If the service is not known online, it is probed first;
// if still unhealthy and fallback is enabled, a degraded response is
// produced instead of an error.
func (r *Router) Route(ctx context.Context, service, action string, payload interface{}) (interface{}, error) {
	start := time.Now()
	out, callErr := r.route(ctx, service, action, payload)
	r.emitAudit(ctx, service, action, time.Since(start), callErr == nil)
	return out, callErr
}

func (r *Router) route(ctx context.Context, service, action string, payload interface{}) (interface{}, error) {
	entry, ok := r.registry.Lookup(service)
	if !ok {
		return nil, fmt.Errorf("mcp: %w: %q", core.ErrServiceNotFound, service)
	}

	status := entry.Status
	if status != StatusOnline {
		probed, err := r.Probe(ctx, service)
		if err == nil {
			status = probed
		}
	}

	if status != StatusOnline {
		if entry.FallbackEnabled {
			if fn, ok := r.degraded[service]; ok {
				return fn(ctx, action, payload)
			}
			return map[string]interface{}{"status": "degraded", "service": service, "action": action}, nil
		}
		return nil, fmt.Errorf("mcp: %w: %q", core.ErrServiceOffline, service)
	}

	return r.forward(ctx, entry, action, payload)
}

func (r *Router) forward(ctx context.Context, entry ServiceEntry, action string, payload interface{}) (interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, entry.BaseEndpoint+"/"+action, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mcp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: %w: %v", core.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mcp: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("mcp: %w: %s returned %d: %s", core.ErrUpstreamFailure, entry.Name, resp.StatusCode, string(respBody))
	}

	var decoded interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return nil, fmt.Errorf("mcp: decode response: %w", err)
		}
	}
	return decoded, nil
}

func (r *Router) emitAudit(ctx context.Context, service, action string, latency time.Duration, success bool) {
	telemetry.Histogram(ctx, "mcp.call.latency_ms", float64(latency.Milliseconds()),
		attribute.String("service", service), attribute.String("action", action), attribute.Bool("success", success))

	if r.audit == nil {
		return
	}
	r.audit(ctx, map[string]interface{}{
		"event":      "mcp_call",
		"service":    service,
		"action":     action,
		"latency_ms": latency.Milliseconds(),
		"success":    success,
	})
}
