package autonomy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/taskforge/core"
)

// defaultIterationCap bounds the outer loop as a last-resort safety
// limit: a plan that never converges still terminates.
const defaultIterationCap = 50

// AuditFunc emits an agent_decision audit event for one step
// transition.
type AuditFunc func(ctx context.Context, event map[string]interface{})

// Loop drives the plan → execute → validate → recover → retry outer
// loop described by spec §4.6, grounded on `orchestration/task_worker.go`'s
// worker loop shape (context-timeout-wrapped execution, panic recovery)
// and `orchestration/workflow_engine.go`'s step status vocabulary.
type Loop struct {
	checkpoints  *CheckpointStore
	actions      *ActionRegistry
	logger       core.Logger
	audit        AuditFunc
	iterationCap int
}

// Option configures a Loop.
type Option func(*Loop)

func WithLogger(l core.Logger) Option {
	return func(lp *Loop) {
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			lp.logger = cal.WithComponent("autonomy")
			return
		}
		lp.logger = l
	}
}

func WithAudit(fn AuditFunc) Option { return func(lp *Loop) { lp.audit = fn } }

func WithIterationCap(n int) Option { return func(lp *Loop) { lp.iterationCap = n } }

// New builds a Loop backed by checkpoints and actions.
func New(checkpoints *CheckpointStore, actions *ActionRegistry, opts ...Option) *Loop {
	lp := &Loop{
		checkpoints:  checkpoints,
		actions:      actions,
		logger:       core.NoOpLogger{},
		iterationCap: defaultIterationCap,
	}
	for _, opt := range opts {
		opt(lp)
	}
	return lp
}

// Run executes plan to completion, to a blocked state, to failure
// (iteration cap exceeded), or until ctx is cancelled — whichever
// comes first. If a checkpoint for plan.Goal already exists and is
// non-terminal, execution resumes from its persisted step states
// instead of starting over.
func (l *Loop) Run(ctx context.Context, plan Plan) (*ExecutionCheckpoint, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("autonomy: invalid plan: %w", err)
	}

	cp, err := l.checkpoints.Load(plan.Goal)
	if err != nil {
		return nil, err
	}
	if cp == nil || cp.Status.terminal() {
		cp = newCheckpoint(plan)
	}

	for {
		if ctx.Err() != nil {
			if err := l.checkpoints.Save(cp); err != nil {
				return cp, err
			}
			return cp, ctx.Err()
		}

		cp.Metrics.Iterations++
		if cp.Metrics.Iterations > l.iterationCap {
			cp.Status = GoalFailed
			_ = l.checkpoints.Save(cp)
			return cp, fmt.Errorf("autonomy: goal %q exceeded iteration cap %d", plan.Goal, l.iterationCap)
		}

		cp.Status = GoalExecuting
		sequential, groups := readySteps(plan, cp.Steps)
		var mu sync.Mutex

		for _, step := range sequential {
			l.runStep(ctx, plan, step, cp, &mu)
			if err := l.checkpoints.Save(cp); err != nil {
				return cp, err
			}
		}

		l.runParallelGroups(ctx, plan, groups, cp, &mu)
		if err := l.checkpoints.Save(cp); err != nil {
			return cp, err
		}

		cp.Status = terminationStatus(plan, cp.Steps)
		if err := l.checkpoints.Save(cp); err != nil {
			return cp, err
		}
		if cp.Status.terminal() {
			return cp, nil
		}
	}
}

// runParallelGroups runs every ready parallel-group member concurrently
// via real goroutines (spec's REDESIGN FLAG: the original Python
// source ran "parallel" groups sequentially; this runtime adopts true
// concurrency). Shared checkpoint fields (Metrics, RecoveryHistory,
// CurrentStepID) are guarded by mu; each step's own StepState is only
// ever written by the one goroutine running it.
func (l *Loop) runParallelGroups(ctx context.Context, plan Plan, groups map[string][]Step, cp *ExecutionCheckpoint, mu *sync.Mutex) {
	var steps []Step
	for _, members := range groups {
		steps = append(steps, members...)
	}
	if len(steps) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(steps))
	for _, step := range steps {
		step := step
		go func() {
			defer wg.Done()
			l.runStep(ctx, plan, step, cp, mu)
		}()
	}
	wg.Wait()
}

// runStep executes one step's full execute → validate → recover
// sequence, mutating its own StepState in place. mu guards the
// checkpoint-level fields this step's outcome touches, so it is safe
// to call concurrently for distinct steps of the same checkpoint.
func (l *Loop) runStep(ctx context.Context, plan Plan, step Step, cp *ExecutionCheckpoint, mu *sync.Mutex) {
	state := cp.Steps[step.ID]
	mu.Lock()
	cp.CurrentStepID = step.ID
	mu.Unlock()

	state.Status = StepExecuting
	state.Attempts++
	now := time.Now().UTC()
	state.StartedAt = &now

	handler, known := l.actions.Lookup(step.Action)
	if !known {
		state.Error = fmt.Sprintf("unknown action %q", step.Action)
		l.recover(ctx, step, state, cp, mu)
		return
	}

	attemptCtx := ctx
	var cancel context.CancelFunc
	if step.Retry.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, step.Retry.Timeout)
		defer cancel()
	}

	out, err := l.invoke(attemptCtx, handler, ActionInput{
		Step:      step,
		Inputs:    gatherInputs(step, cp.Steps),
		Variables: cp.Variables,
		VarsMu:    mu,
	})
	completed := time.Now().UTC()
	state.CompletedAt = &completed

	if err != nil {
		state.Error = err.Error()
		l.emitAudit(ctx, "step_failed", map[string]interface{}{"goal": plan.Goal, "step": step.ID, "error": err.Error()})
		l.recover(ctx, step, state, cp, mu)
		return
	}

	if !l.validate(step, out) {
		state.Error = out.Error
		if state.Error == "" {
			state.Error = "validation failed"
		}
		l.emitAudit(ctx, "step_invalid", map[string]interface{}{"goal": plan.Goal, "step": step.ID, "error": state.Error})
		l.recover(ctx, step, state, cp, mu)
		return
	}

	state.Outputs = out.Outputs
	state.Error = ""
	state.Status = StepComplete
	mu.Lock()
	cp.Metrics.StepsComplete++
	mu.Unlock()
	l.emitAudit(ctx, "step_complete", map[string]interface{}{"goal": plan.Goal, "step": step.ID})
}

// invoke runs handler with panic recovery, the same discipline the
// Manager applies to skill handlers.
func (l *Loop) invoke(ctx context.Context, handler ActionHandler, in ActionInput) (out ActionOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("autonomy: action panic: %v", r)
		}
	}()
	return handler(ctx, in)
}

func (l *Loop) validate(step Step, out ActionOutput) bool {
	if out.Error != "" {
		return false
	}
	switch step.Validation {
	case ValidationOutputExists:
		if step.Condition == "" {
			return len(out.Outputs) > 0
		}
		_, ok := out.Outputs[step.Condition]
		return ok
	case ValidationCustom, ValidationAPICheck:
		return true
	default:
		return len(out.Outputs) > 0
	}
}

// recover implements spec's Recover decision: retry, skip, alternative,
// or escalate. mu guards the checkpoint-level Metrics/RecoveryHistory
// mutations so this is safe to call from concurrent parallel-group
// goroutines.
func (l *Loop) recover(ctx context.Context, step Step, state *StepState, cp *ExecutionCheckpoint, mu *sync.Mutex) {
	entry := RecoveryEntry{StepID: step.ID, Timestamp: time.Now().UTC(), Reason: state.Error}

	maxAttempts := step.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	switch {
	case state.Attempts < maxAttempts:
		entry.Action = "retry"
		mu.Lock()
		cp.Metrics.Retries++
		mu.Unlock()
		delay := step.Retry.Delay(state.Attempts)
		l.emitAudit(ctx, "step_retry", map[string]interface{}{"goal": cp.Goal, "step": step.ID, "delay_ms": delay.Milliseconds()})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		state.Status = StepPending
		state.Error = ""

	case step.Optional:
		entry.Action = "skip"
		state.Status = StepSkipped

	case step.AlternativeAction != "":
		entry.Action = "alternative"
		if handler, ok := l.actions.Lookup(step.AlternativeAction); ok {
			out, err := l.invoke(ctx, handler, ActionInput{Step: step, Inputs: gatherInputs(step, cp.Steps), Variables: cp.Variables, VarsMu: mu})
			if err == nil && out.Error == "" {
				state.Outputs = out.Outputs
				state.Error = ""
				state.Status = StepComplete
				mu.Lock()
				cp.Metrics.StepsComplete++
				mu.Unlock()
				break
			}
		}
		state.Status = StepBlocked
		mu.Lock()
		cp.Metrics.StepsFailed++
		mu.Unlock()

	default:
		entry.Action = "escalate"
		state.Status = StepBlocked
		mu.Lock()
		cp.Metrics.StepsFailed++
		mu.Unlock()
	}

	state.Recovery = &entry
	mu.Lock()
	cp.RecoveryHistory = append(cp.RecoveryHistory, entry)
	mu.Unlock()
}

func gatherInputs(step Step, states map[string]*StepState) map[string]string {
	inputs := make(map[string]string)
	for _, dep := range step.DependsOn {
		if state, ok := states[dep]; ok {
			for k, v := range state.Outputs {
				inputs[k] = v
			}
		}
	}
	return inputs
}

// terminationStatus implements spec's closed termination rule: complete
// when every non-optional step is complete; blocked if any non-optional
// step is blocked or any non-optional pending step has a blocked
// dependency; otherwise still executing.
func terminationStatus(plan Plan, states map[string]*StepState) GoalStatus {
	allComplete := true
	for _, step := range plan.Steps {
		state := states[step.ID]
		if step.Optional {
			continue
		}
		switch state.Status {
		case StepComplete, StepSkipped:
			continue
		case StepBlocked:
			return GoalBlocked
		default:
			allComplete = false
		}
	}
	if allComplete {
		return GoalComplete
	}
	for _, step := range plan.Steps {
		if step.Optional {
			continue
		}
		state := states[step.ID]
		if state.Status != StepPending {
			continue
		}
		for _, dep := range step.DependsOn {
			if states[dep].Status == StepBlocked {
				return GoalBlocked
			}
		}
	}
	return GoalExecuting
}

func (l *Loop) emitAudit(ctx context.Context, event string, details map[string]interface{}) {
	if l.audit == nil {
		return
	}
	details["event"] = event
	details["category"] = "agent_decision"
	l.audit(ctx, details)
}
