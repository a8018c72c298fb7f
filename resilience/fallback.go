package resilience

import "context"

// FallbackEntry is the data model's fallback map entry: "{primary →
// fallback, degradation_level, queue_on_fail, notify}".
type FallbackEntry struct {
	Primary          string
	Fallback         func(ctx context.Context) (interface{}, error)
	DegradationLevel string
	QueueOnFail      bool
	Notify           bool
	SafeDefault      interface{}
}

// FallbackRegistry is the closed, per-agent declared fallback table.
type FallbackRegistry struct {
	entries map[string]FallbackEntry
}

// NewFallbackRegistry returns an empty registry.
func NewFallbackRegistry() *FallbackRegistry {
	return &FallbackRegistry{entries: make(map[string]FallbackEntry)}
}

// Register declares the fallback behavior for an agent/operation name.
func (r *FallbackRegistry) Register(e FallbackEntry) {
	r.entries[e.Primary] = e
}

// Lookup returns the declared entry for name, if any.
func (r *FallbackRegistry) Lookup(name string) (FallbackEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}
