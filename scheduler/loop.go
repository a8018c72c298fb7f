package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/taskforge/core"
)

// ActionHandler runs the work declared by a schedule entry's action
// name.
type ActionHandler func(ctx context.Context, entry Entry) error

// AuditFunc emits a system/task_lifecycle audit event for a tick.
type AuditFunc func(ctx context.Context, event map[string]interface{})

// Scheduler ticks a loaded schedule file, dispatching due entries to
// registered action handlers and persisting state back to disk.
type Scheduler struct {
	path     string
	file     *File
	handlers map[string]ActionHandler
	logger   core.Logger
	audit    AuditFunc
	tick     time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l core.Logger) Option {
	return func(s *Scheduler) {
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("scheduler")
			return
		}
		s.logger = l
	}
}

func WithAudit(fn AuditFunc) Option { return func(s *Scheduler) { s.audit = fn } }

func WithTickInterval(d time.Duration) Option { return func(s *Scheduler) { s.tick = d } }

// New loads path and builds a Scheduler over it.
func New(path string, opts ...Option) (*Scheduler, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		path:     path,
		file:     f,
		handlers: make(map[string]ActionHandler),
		logger:   core.NoOpLogger{},
		tick:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterAction registers the handler invoked for schedule entries
// whose Action field equals name.
func (s *Scheduler) RegisterAction(name string, handler ActionHandler) {
	s.handlers[name] = handler
}

// Run ticks every s.tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	if err := s.Tick(ctx, time.Now()); err != nil {
		s.logger.ErrorWithContext(ctx, "initial tick failed", map[string]interface{}{"error": err.Error()})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.Tick(ctx, now); err != nil {
				s.logger.ErrorWithContext(ctx, "tick failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// Tick evaluates every enabled entry against now, invoking due
// handlers and persisting updated state.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	dirty := false
	for i := range s.file.Entries {
		e := &s.file.Entries[i]
		if !e.due(now) {
			continue
		}
		dirty = true

		date := now.Format("2006-01-02")
		if e.isExcepted(date) {
			s.logger.InfoWithContext(ctx, "schedule entry excepted for today", map[string]interface{}{"entry": e.Name, "date": date})
			if err := e.computeNextRun(now); err != nil {
				s.logger.ErrorWithContext(ctx, "failed to reschedule excepted entry", map[string]interface{}{"entry": e.Name, "error": err.Error()})
			}
			continue
		}

		handler, ok := s.handlers[e.Action]
		if !ok {
			s.logger.WarnWithContext(ctx, "no handler registered for action, skipping", map[string]interface{}{"entry": e.Name, "action": e.Action})
			if err := e.computeNextRun(now); err != nil {
				s.logger.ErrorWithContext(ctx, "failed to reschedule unhandled entry", map[string]interface{}{"entry": e.Name, "error": err.Error()})
			}
			continue
		}

		err := handler(ctx, *e)
		last := now
		e.LastRun = &last
		e.RunCount++
		if err != nil {
			e.FailCount++
			s.logger.ErrorWithContext(ctx, "scheduled action failed", map[string]interface{}{"entry": e.Name, "action": e.Action, "error": err.Error()})
		}
		s.emitAudit(ctx, e.Name, e.Action, err == nil)

		if err := e.computeNextRun(now); err != nil {
			s.logger.ErrorWithContext(ctx, "failed to compute next run", map[string]interface{}{"entry": e.Name, "error": err.Error()})
		}
	}

	if dirty {
		if err := s.file.Save(s.path); err != nil {
			return fmt.Errorf("scheduler: persist schedule state: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) emitAudit(ctx context.Context, name, action string, success bool) {
	if s.audit == nil {
		return
	}
	s.audit(ctx, map[string]interface{}{
		"event": "scheduled_run", "entry": name, "action": action, "success": success,
	})
}
