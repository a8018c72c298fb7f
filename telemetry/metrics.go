package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meter is lazily resolved from whatever MeterProvider is globally
// installed. When none is installed, otel's API package supplies a
// no-op provider, so every call below is a safe default rather than a
// nil-pointer risk — the same contract core.NoOpLogger gives callers
// that never configured a real logger.
var (
	meterOnce sync.Once
	meter     metric.Meter

	countersMu sync.Mutex
	counters   = map[string]metric.Int64Counter{}
	histosMu   sync.Mutex
	histos     = map[string]metric.Float64Histogram{}
)

func getMeter() metric.Meter {
	meterOnce.Do(func() {
		meter = otel.GetMeterProvider().Meter("taskforge")
	})
	return meter
}

// Counter increments a named counter by 1. Use for counting events:
// tasks routed, approvals granted, skill dispatches.
func Counter(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	countersMu.Lock()
	c, ok := counters[name]
	if !ok {
		var err error
		c, err = getMeter().Int64Counter(name)
		if err != nil {
			countersMu.Unlock()
			return
		}
		counters[name] = c
	}
	countersMu.Unlock()
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Histogram records a value in a distribution: stage latency, queue
// depth, retry count.
func Histogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	histosMu.Lock()
	h, ok := histos[name]
	if !ok {
		var err error
		h, err = getMeter().Float64Histogram(name)
		if err != nil {
			histosMu.Unlock()
			return
		}
		histos[name] = h
	}
	histosMu.Unlock()
	h.Record(ctx, value, metric.WithAttributes(attrs...))
}
