package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLogger(LoggingConfig{Level: "info", Format: "json"}, "test-service")
	logger.SetOutput(&buf)

	logger.Info("task started", map[string]interface{}{"task_id": "t1"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "task started", entry["message"])
	assert.Equal(t, "t1", entry["task_id"])
	assert.Equal(t, "test-service", entry["service"])
}

func TestProductionLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLogger(LoggingConfig{Level: "warn", Format: "text"}, "svc")
	logger.SetOutput(&buf)

	logger.Info("should not appear", nil)
	logger.Debug("should not appear either", nil)
	logger.Warn("should appear", nil)

	out := buf.String()
	assert.False(t, strings.Contains(out, "should not appear"))
	assert.True(t, strings.Contains(out, "should appear"))
}

func TestProductionLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLogger(LoggingConfig{Level: "info", Format: "text"}, "svc")
	logger.SetOutput(&buf)

	scoped := logger.WithComponent("core/store")
	scoped.Info("hello", nil)

	assert.Contains(t, buf.String(), "core/store")
}

func TestNoOpLoggerNeverPanics(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Info("x", nil)
	l.Error("x", map[string]interface{}{"a": 1})
	scoped := l.(ComponentAwareLogger).WithComponent("anything")
	scoped.Debug("y", nil)
}
