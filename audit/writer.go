package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/itsneelabh/taskforge/core"
	"github.com/itsneelabh/taskforge/telemetry"
)

const batchSize = 100

// Writer is the dedicated audit worker: callers enqueue events through
// Record (which matches the AuditFunc signature every other package in
// this repo accepts) onto an in-memory channel; a background goroutine
// drains it in batches of up to batchSize, grouped by category, and
// appends them to <root>/<category>/<YYYY-MM>/<category>.log.
type Writer struct {
	root   string
	queue  chan Event
	logger core.Logger
	done   chan struct{}

	mu      sync.Mutex
	counts  map[Category]int64
}

// Option configures a Writer.
type Option func(*Writer)

func WithLogger(l core.Logger) Option {
	return func(w *Writer) {
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			w.logger = cal.WithComponent("audit")
			return
		}
		w.logger = l
	}
}

func WithQueueSize(n int) Option {
	return func(w *Writer) { w.queue = make(chan Event, n) }
}

// NewWriter builds a Writer rooted at root. Call Run in a goroutine to
// start draining the queue.
func NewWriter(root string, opts ...Option) *Writer {
	w := &Writer{
		root:   root,
		queue:  make(chan Event, 1000),
		logger: core.NoOpLogger{},
		done:   make(chan struct{}),
		counts: make(map[Category]int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record is an AuditFunc: it matches `func(ctx, map[string]interface{})`
// so it can be passed directly as the audit callback every producing
// package (router, manager, mcp, scheduler, ...) accepts.
func (w *Writer) Record(ctx context.Context, details map[string]interface{}) {
	evt := Event{
		Timestamp:     time.Now().UTC(),
		Category:      categoryOf(details),
		EventName:     eventNameOf(details),
		AgentID:       stringField(details, "agent_id"),
		CorrelationID: telemetry.TraceID(ctx),
		SessionID:     stringField(details, "session_id"),
		Details:       details,
	}
	select {
	case w.queue <- evt:
	default:
		w.logger.WarnWithContext(ctx, "audit queue full, dropping event", map[string]interface{}{"category": evt.Category})
	}
}

// Run drains the queue until ctx is cancelled, flushing in batches of
// up to batchSize grouped by category.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]Event, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.flush(batch); err != nil {
			w.logger.Error("failed to flush audit batch", map[string]interface{}{"error": err.Error(), "count": len(batch)})
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()
		case evt := <-w.queue:
			batch = append(batch, evt)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (w *Writer) flush(batch []Event) error {
	grouped := make(map[Category][]Event)
	for _, evt := range batch {
		grouped[evt.Category] = append(grouped[evt.Category], evt)
	}

	var firstErr error
	for category, events := range grouped {
		if err := w.appendCategory(category, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *Writer) appendCategory(category Category, events []Event) error {
	now := events[len(events)-1].Timestamp
	dir := filepath.Join(w.root, string(category), now.Format("2006-01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("audit: create category directory: %w", err)
	}
	path := filepath.Join(dir, string(category)+".log")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log for append: %w", err)
	}
	defer f.Close()

	for _, evt := range events {
		line, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("audit: marshal event: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("audit: write event: %w", err)
		}
	}

	w.mu.Lock()
	w.counts[category] += int64(len(events))
	w.mu.Unlock()

	return w.snapshotCounts()
}

// snapshotCounts periodically persists per-category counters so a
// restart can resume without re-scanning every log file.
func (w *Writer) snapshotCounts() error {
	w.mu.Lock()
	data, err := json.MarshalIndent(w.counts, "", "  ")
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("audit: marshal counters snapshot: %w", err)
	}
	return os.WriteFile(filepath.Join(w.root, "counters.json"), data, 0o644)
}
