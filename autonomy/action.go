package autonomy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/taskforge/skills"
)

// ActionInput is what an action handler receives: the step being
// executed plus its gathered dependency outputs and the shared
// variable bag. Variables is the checkpoint's own map, shared by every
// step across every iteration of the goal; VarsMu guards it since
// parallel-group steps can run concurrently (see loop.go's
// runParallelGroups).
type ActionInput struct {
	Step      Step
	Inputs    map[string]string
	Variables map[string]string
	VarsMu    *sync.Mutex
}

// getVariable and setVariable centralize the locking around Variables
// so every built-in that touches the bag does it the same way.
func (in ActionInput) getVariable(key string) string {
	if in.VarsMu == nil {
		return in.Variables[key]
	}
	in.VarsMu.Lock()
	defer in.VarsMu.Unlock()
	return in.Variables[key]
}

func (in ActionInput) setVariable(key, value string) {
	if in.Variables == nil {
		return
	}
	if in.VarsMu == nil {
		in.Variables[key] = value
		return
	}
	in.VarsMu.Lock()
	defer in.VarsMu.Unlock()
	in.Variables[key] = value
}

// snapshotVariables returns a point-in-time copy of the bag, safe to
// hand to code outside the lock (e.g. a skill handler's Header map).
func (in ActionInput) snapshotVariables() map[string]string {
	if in.VarsMu == nil {
		return in.Variables
	}
	in.VarsMu.Lock()
	defer in.VarsMu.Unlock()
	out := make(map[string]string, len(in.Variables))
	for k, v := range in.Variables {
		out[k] = v
	}
	return out
}

// ActionOutput is what a handler returns; Outputs is stored on the
// step's StepState for downstream steps to read as Inputs.
type ActionOutput struct {
	Outputs map[string]string
	Error   string
}

// ActionHandler executes one step's action.
type ActionHandler func(ctx context.Context, in ActionInput) (ActionOutput, error)

// ActionRegistry maps action names to handlers. It is closed: an
// unregistered action name fails the step rather than silently
// no-opping.
type ActionRegistry struct {
	handlers map[string]ActionHandler
}

// NewActionRegistry returns a registry pre-populated with the built-in
// actions {log, wait, condition, set_variable, get_variable, noop}.
func NewActionRegistry() *ActionRegistry {
	r := &ActionRegistry{handlers: make(map[string]ActionHandler)}
	r.Register("log", actionLog)
	r.Register("wait", actionWait)
	r.Register("condition", actionCondition)
	r.Register("set_variable", actionSetVariable)
	r.Register("get_variable", actionGetVariable)
	r.Register("noop", actionNoop)
	return r
}

// Register adds or replaces the handler for name.
func (r *ActionRegistry) Register(name string, handler ActionHandler) {
	r.handlers[name] = handler
}

// Lookup returns the handler registered for name.
func (r *ActionRegistry) Lookup(name string) (ActionHandler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// RegisterSkills adds one action per skill in registry, each of which
// adapts a skills.Handler to the ActionHandler signature so a Plan step
// can invoke a skill the same way the Manager does.
func (r *ActionRegistry) RegisterSkills(registry *skills.Registry) {
	for _, id := range registry.IDs() {
		entry, ok := registry.Lookup(id)
		if !ok {
			continue
		}
		r.Register(id, adaptSkill(entry.Handler))
	}
}

func adaptSkill(handler skills.Handler) ActionHandler {
	return func(ctx context.Context, in ActionInput) (ActionOutput, error) {
		out, err := handler(ctx, skills.Input{
			Title:  in.Step.Name,
			Body:   in.Step.Condition,
			Header: in.snapshotVariables(),
		})
		if err != nil {
			return ActionOutput{}, err
		}
		if !out.Success {
			return ActionOutput{Error: out.Error}, nil
		}
		return ActionOutput{Outputs: map[string]string{"output": out.Output}}, nil
	}
}

func actionLog(_ context.Context, in ActionInput) (ActionOutput, error) {
	return ActionOutput{Outputs: map[string]string{"logged": in.Step.Name}}, nil
}

func actionWait(ctx context.Context, in ActionInput) (ActionOutput, error) {
	d, err := time.ParseDuration(in.Step.Condition)
	if err != nil {
		d = time.Second
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return ActionOutput{}, ctx.Err()
	}
	return ActionOutput{Outputs: map[string]string{"waited": d.String()}}, nil
}

// actionCondition evaluates a tiny "var == value" expression against
// the variable bag; a step using this action is meant to pair with
// ValidationCustom.
func actionCondition(_ context.Context, in ActionInput) (ActionOutput, error) {
	parts := strings.SplitN(in.Step.Condition, "==", 2)
	if len(parts) != 2 {
		return ActionOutput{Error: fmt.Sprintf("malformed condition %q", in.Step.Condition)}, nil
	}
	key := strings.TrimSpace(parts[0])
	want := strings.TrimSpace(parts[1])
	got := in.getVariable(key)
	if got != want {
		return ActionOutput{Error: fmt.Sprintf("condition %q unmet: got %q", in.Step.Condition, got)}, nil
	}
	return ActionOutput{Outputs: map[string]string{"condition": "met"}}, nil
}

// actionSetVariable writes key=value into the shared variable bag, so
// a later step's "condition"/"get_variable"/skill invocation can read
// it back via ActionInput.Variables.
func actionSetVariable(_ context.Context, in ActionInput) (ActionOutput, error) {
	parts := strings.SplitN(in.Step.Condition, "=", 2)
	if len(parts) != 2 {
		return ActionOutput{}, fmt.Errorf("autonomy: set_variable step %q needs \"key=value\" in its condition", in.Step.ID)
	}
	key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	in.setVariable(key, value)
	return ActionOutput{Outputs: map[string]string{"variable": key, "value": value}}, nil
}

func actionGetVariable(_ context.Context, in ActionInput) (ActionOutput, error) {
	key := strings.TrimSpace(in.Step.Condition)
	return ActionOutput{Outputs: map[string]string{"value": in.getVariable(key)}}, nil
}

func actionNoop(_ context.Context, _ ActionInput) (ActionOutput, error) {
	return ActionOutput{}, nil
}
