// Package manager implements the Manager (spec §4.4): it resolves
// which skill a planned task needs, decides whether it must be gated
// behind approval, and otherwise invokes the skill handler directly.
// It also carries the Validator (spec's table row "Verifies
// completion, transitions file to terminal state") since no dedicated
// package was warranted for it: validator.go inspects a handler's
// result and decides done/failed/revalidate.
package manager

import (
	"context"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/itsneelabh/taskforge/approval"
	"github.com/itsneelabh/taskforge/core"
	"github.com/itsneelabh/taskforge/memory"
	"github.com/itsneelabh/taskforge/planner"
	"github.com/itsneelabh/taskforge/skills"
	"github.com/itsneelabh/taskforge/store"
)

// reSkillRequired extracts the skill name the Planner recorded in a
// task's "## Execution Plan" section, e.g. "**Skill Required:** email".
var reSkillRequired = regexp.MustCompile(`(?i)\*\*Skill Required:\*\*\s*(\S+)`)

// RetryDecider decides whether a failed handler invocation deserves
// another attempt at this layer. The Resilience Controller is the
// intended implementation; a nil decider means "never retry here"
// (multi-step retrying belongs to the Autonomy Loop, per spec).
type RetryDecider interface {
	ShouldRetry(ctx context.Context, skillID string, attempt int, err error) bool
}

// AuditFunc emits a task_lifecycle/agent_decision audit event.
type AuditFunc func(ctx context.Context, event map[string]interface{})

// MemoryFunc records a terminal (done or failed) execution outcome,
// completing the data flow's last hop: "Validator ... transitions file
// to the done directory → Memory records the execution." A nil func
// means Memory recording is skipped (e.g. in tests that don't need it).
type MemoryFunc func(exec memory.Execution) error

// HeartbeatFunc records a liveness beat for an agent (here, a skill
// handler) just before it runs. A nil func means no heartbeat tracking
// is wired (e.g. in tests). The intended implementation is
// resilience.HeartbeatMonitor.Beat.
type HeartbeatFunc func(agentID string)

// Manager wires skill resolution, the approval gate, and handler
// dispatch together.
type Manager struct {
	skills    *skills.Registry
	approval  *approval.Controller
	logger    core.Logger
	audit     AuditFunc
	retry     RetryDecider
	validator Validator
	remember  MemoryFunc
	heartbeat HeartbeatFunc

	// DefaultSkill is used when no plan, header, or content signal
	// resolves a skill.
	DefaultSkill string
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l core.Logger) Option {
	return func(m *Manager) {
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			m.logger = cal.WithComponent("manager")
			return
		}
		m.logger = l
	}
}

func WithAudit(fn AuditFunc) Option { return func(m *Manager) { m.audit = fn } }

func WithRetryDecider(d RetryDecider) Option { return func(m *Manager) { m.retry = d } }

func WithDefaultSkill(skill string) Option { return func(m *Manager) { m.DefaultSkill = skill } }

func WithValidator(v Validator) Option { return func(m *Manager) { m.validator = v } }

func WithMemory(fn MemoryFunc) Option { return func(m *Manager) { m.remember = fn } }

func WithHeartbeat(fn HeartbeatFunc) Option { return func(m *Manager) { m.heartbeat = fn } }

// New builds a Manager backed by the given skill registry and approval
// controller.
func New(registry *skills.Registry, ctrl *approval.Controller, opts ...Option) *Manager {
	m := &Manager{
		skills:       registry,
		approval:     ctrl,
		logger:       core.NoOpLogger{},
		validator:    DefaultValidator{},
		DefaultSkill: "planner",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// resolveSkill implements the precedence order: plan > header skill >
// content classification > default.
func (m *Manager) resolveSkill(t *store.Task) string {
	if match := reSkillRequired.FindStringSubmatch(t.Body); match != nil {
		return strings.ToLower(match[1])
	}
	if skill, ok := t.Header.Get("skill"); ok && skill != "" {
		return skill
	}
	category := planner.New().Classify(t)
	if skill := planner.SkillFor(category); skill != "" {
		return skill
	}
	return m.DefaultSkill
}

// Dispatch runs the decision procedure for a single planned task.
// approvalDir is where a diverted task is parked; the caller is
// responsible for later reconciling an approved/rejected task via the
// Approval Controller directly.
func (m *Manager) Dispatch(ctx context.Context, t *store.Task, approvalDir string) error {
	skillID := m.resolveSkill(t)

	entry, known := m.skills.Lookup(skillID)
	if !known {
		m.emitAudit(ctx, "skill_selection", map[string]interface{}{
			"task": t.Title(), "skill": skillID, "outcome": "unknown",
		})
		return m.fail(t, skillID, time.Now(), fmt.Errorf("manager: %w: %q", core.ErrUnknownSkill, skillID))
	}

	m.emitAudit(ctx, "skill_selection", map[string]interface{}{
		"task": t.Title(), "skill": skillID, "outcome": "resolved",
	})

	priority := core.Priority(t.Header.GetDefault("priority", string(core.PriorityStandard)))
	alreadyApproved := t.Header.GetDefault("approved", "") == "true"
	if !alreadyApproved && (entry.RequiresApproval || priority.RequiresApproval()) {
		tag, ok := approval.Detect(t)
		if !ok {
			tag = approval.TagPriorityEscalation
		}
		if _, err := m.approval.Divert(t, approvalDir, tag); err != nil {
			return fmt.Errorf("manager: divert to approval: %w", err)
		}
		m.logger.InfoWithContext(ctx, "task diverted to approval", map[string]interface{}{
			"task": t.Title(), "skill": skillID, "tag": string(tag),
		})
		return nil
	}

	return m.invoke(ctx, t, skillID, entry)
}

func (m *Manager) invoke(ctx context.Context, t *store.Task, skillID string, entry skills.Entry) error {
	startedAt := time.Now()
	t.Header.Set("status", string(core.StatusInProgress))
	if err := store.Write(t); err != nil {
		return fmt.Errorf("manager: persist in_progress: %w", err)
	}

	if m.heartbeat != nil {
		m.heartbeat(skillID)
	}

	in := skills.Input{
		Title:    t.Title(),
		Priority: t.Header.GetDefault("priority", string(core.PriorityStandard)),
		Body:     t.Body,
		Header:   headerMap(t.Header),
		Path:     t.Path,
	}

	out, err := m.runHandler(ctx, entry.Handler, in)
	if err != nil {
		return m.fail(t, skillID, startedAt, err)
	}

	if !t.HasSection("## Execution Results") {
		if err := store.AppendSection(t, "## Execution Results", renderResults(out)); err != nil {
			return fmt.Errorf("manager: append execution results: %w", err)
		}
	}

	return m.validate(ctx, t, skillID, startedAt, out)
}

// validate runs the Validator over a handler's result and transitions
// the task to its terminal or revalidate state accordingly.
func (m *Manager) validate(ctx context.Context, t *store.Task, skillID string, startedAt time.Time, out skills.Output) error {
	switch m.validator.Validate(ctx, t, out) {
	case ValidationDone:
		t.Header.Set("status", string(core.StatusDone))
		t.Header.Set("completed", time.Now().UTC().Format(time.RFC3339))
		if err := store.Write(t); err != nil {
			return fmt.Errorf("manager: persist done: %w", err)
		}
		m.emitAudit(ctx, "handler_dispatch", map[string]interface{}{
			"task": t.Title(), "skill": skillID, "outcome": "done",
		})
		m.recordMemory(t, skillID, startedAt, true)
		return nil

	case ValidationRevalidate:
		count := t.Header.GetDefault("revalidate_count", "0")
		attempts := atoiOrZero(count) + 1
		if attempts > maxRevalidations {
			return m.fail(t, skillID, startedAt, fmt.Errorf("manager: skill %q exceeded %d revalidation attempts", skillID, maxRevalidations))
		}
		t.Header.Set("revalidate_count", fmt.Sprintf("%d", attempts))
		t.Header.Set("status", string(core.StatusNeedsAction))
		if err := store.Write(t); err != nil {
			return fmt.Errorf("manager: persist revalidate: %w", err)
		}
		m.emitAudit(ctx, "validation", map[string]interface{}{
			"task": t.Title(), "skill": skillID, "outcome": "revalidate", "attempt": attempts,
		})
		return nil

	default:
		return m.fail(t, skillID, startedAt, fmt.Errorf("manager: skill %q reported failure: %s", skillID, out.Error))
	}
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// runHandler invokes handler with panic recovery, grounded on the
// teacher's executeHandler.
func (m *Manager) runHandler(ctx context.Context, handler skills.Handler, in skills.Input) (out skills.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorWithContext(ctx, "handler panicked", map[string]interface{}{
				"panic": r, "stack": string(debug.Stack()),
			})
			err = fmt.Errorf("manager: handler panic: %v", r)
		}
	}()
	return handler(ctx, in)
}

// fail marks t failed (or retry, if the resilience layer asks for
// another attempt) and appends an "## Error" section, unless one is
// already present.
func (m *Manager) fail(t *store.Task, skillID string, startedAt time.Time, handlerErr error) error {
	attempt := 1
	terminal := true
	if m.retry != nil && m.retry.ShouldRetry(context.Background(), skillID, attempt, handlerErr) {
		t.Header.Set("status", string(core.StatusRetry))
		terminal = false
	} else {
		t.Header.Set("status", string(core.StatusFailed))
	}

	if !t.HasSection("## Error") {
		if err := store.AppendSection(t, "## Error", handlerErr.Error()+"\n"); err != nil {
			return fmt.Errorf("manager: append error section: %w", err)
		}
	}
	if err := store.Write(t); err != nil {
		return fmt.Errorf("manager: persist failure: %w", err)
	}
	if terminal {
		m.recordMemory(t, skillID, startedAt, false)
	}
	return handlerErr
}

// recordMemory reports a terminal outcome to the Memory component, if
// one was wired in. Recording failures are logged, never propagated —
// Memory is an observability concern, not part of the task's own
// success/failure.
func (m *Manager) recordMemory(t *store.Task, skillID string, startedAt time.Time, success bool) {
	if m.remember == nil {
		return
	}
	exec := memory.Execution{
		TaskID:      t.Title(),
		Domain:      t.Header.GetDefault("domain", ""),
		Category:    t.Header.GetDefault("domain_category", ""),
		Skill:       skillID,
		Success:     success,
		Duration:    time.Since(startedAt),
		CompletedAt: time.Now().UTC(),
	}
	if err := m.remember(exec); err != nil {
		m.logger.Error("failed to record execution in memory", map[string]interface{}{"error": err.Error(), "task": t.Title()})
	}
}

func (m *Manager) emitAudit(ctx context.Context, event string, details map[string]interface{}) {
	if m.audit == nil {
		return
	}
	details["event"] = event
	m.audit(ctx, details)
}

func headerMap(h *store.Header) map[string]string {
	out := make(map[string]string, len(h.Keys()))
	for _, k := range h.Keys() {
		out[k] = h.GetDefault(k, "")
	}
	return out
}

func renderResults(out skills.Output) string {
	var b strings.Builder
	b.WriteString(out.Output)
	b.WriteString("\n")
	if len(out.Deliverables) > 0 {
		b.WriteString("\n**Deliverables:**\n\n")
		for _, d := range out.Deliverables {
			fmt.Fprintf(&b, "- [ ] %s\n", d)
		}
	}
	return b.String()
}
