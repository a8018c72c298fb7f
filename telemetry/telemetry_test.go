package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderRequiresServiceName(t *testing.T) {
	_, err := NewProvider(Config{})
	require.Error(t, err)
}

func TestNewProviderStdoutFallback(t *testing.T) {
	p, err := NewProvider(Config{ServiceName: "taskforge-test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, end := p.Start(context.Background(), "task.process")
	assert.NotNil(t, ctx)
	end()
}

func TestSpanHelpersAreSafeWithNoActiveSpan(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		AddSpanEvent(ctx, "routed")
		RecordSpanError(ctx, errors.New("boom"))
		SetSpanAttributes(ctx)
	})
	assert.Equal(t, "", TraceID(ctx))
}

func TestMetricsHelpersAreSafeWithNoProvider(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		Counter(ctx, "task.routed.total")
		Histogram(ctx, "task.stage.duration_ms", 12.5)
	})
}
