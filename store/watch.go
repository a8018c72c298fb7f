package store

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// InboxWatcher watches a stage directory with fsnotify and emits a signal
// whenever a new task file might be ready, so a poll loop can react
// immediately instead of waiting for its next sleep interval. The poll
// loop remains the source of truth — InboxWatcher is a latency
// optimization, not a replacement for polling, since fsnotify events can
// be coalesced or dropped under load.
type InboxWatcher struct {
	watcher *fsnotify.Watcher
	signal  chan struct{}
	debounce time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewInboxWatcher creates a watcher for dir. debounce coalesces bursts of
// filesystem events (e.g. an editor's write-then-rename) into a single
// signal; zero uses a 100ms default.
func NewInboxWatcher(dir string, debounce time.Duration) (*InboxWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if debounce == 0 {
		debounce = 100 * time.Millisecond
	}
	return &InboxWatcher{
		watcher:  w,
		signal:   make(chan struct{}, 1),
		debounce: debounce,
	}, nil
}

// Signal returns the channel that receives a value whenever the watched
// directory may have changed. It is buffered to size 1 so a burst of
// events never blocks the watcher goroutine; callers should treat any
// receive as "re-scan", not "exactly one file changed".
func (w *InboxWatcher) Signal() <-chan struct{} {
	return w.signal
}

// Start begins the watch goroutine. It is safe to call once; a second
// call is a no-op.
func (w *InboxWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true
	w.mu.Unlock()

	go w.loop(ctx)
}

func (w *InboxWatcher) loop(ctx context.Context) {
	var pending bool
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !pending {
				pending = true
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			_ = err // dropped; the owning poll loop's next re-scan covers any missed event
		case <-timer.C:
			pending = false
			select {
			case w.signal <- struct{}{}:
			default:
			}
		}
	}
}

// Close stops the watch goroutine and releases the underlying OS handle.
func (w *InboxWatcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
