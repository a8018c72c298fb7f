// Package autonomy implements the Autonomy Loop (spec §4.6): it
// executes a multi-step Plan with per-step retry/backoff, crash
// recovery via a persisted checkpoint, and a bounded number of outer
// iterations.
package autonomy

import (
	"fmt"

	"github.com/itsneelabh/taskforge/resilience"
)

// ValidationClause names how a step's result is checked after it runs.
type ValidationClause string

const (
	// ValidationDefault is "no error and has outputs".
	ValidationDefault      ValidationClause = "default"
	ValidationOutputExists ValidationClause = "output_exists"
	ValidationCustom       ValidationClause = "custom_condition"
	ValidationAPICheck     ValidationClause = "api_check"
)

// Step is one node of a Plan's dependency graph.
type Step struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Action        string             `json:"action"`
	DependsOn     []string           `json:"depends_on,omitempty"`
	Optional      bool               `json:"optional,omitempty"`
	ParallelGroup string             `json:"parallel_group,omitempty"`
	Retry         resilience.RetryPolicy `json:"retry"`
	Validation    ValidationClause   `json:"validation"`

	// Condition is an action-specific expression passed verbatim to the
	// action handler, which interprets it in its own way. The loop reads
	// it only under ValidationOutputExists, as the output key that must
	// be present.
	Condition string `json:"condition,omitempty"`

	// AlternativeAction is invoked by Recover when this step is neither
	// retryable nor optional — spec's "else if an alternative action
	// exists → ALTERNATIVE".
	AlternativeAction string `json:"alternative_action,omitempty"`
}

// Plan is an ordered set of steps forming an acyclic dependency graph.
type Plan struct {
	Goal  string `json:"goal"`
	Steps []Step `json:"steps"`
}

// Validate checks the two invariants spec's data model declares for a
// Plan: step ids are unique, and the dependency graph is acyclic.
func (p Plan) Validate() error {
	seen := make(map[string]Step, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("autonomy: step with empty id in plan %q", p.Goal)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("autonomy: duplicate step id %q in plan %q", s.ID, p.Goal)
		}
		seen[s.ID] = s
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("autonomy: step %q depends on unknown step %q", s.ID, dep)
			}
		}
	}
	return detectCycle(p.Steps)
}

func detectCycle(steps []Step) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	byID := make(map[string]Step, len(steps))
	color := make(map[string]int, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		color[s.ID] = white
	}

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case gray:
				return fmt.Errorf("autonomy: dependency cycle involving step %q", id)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if err := visit(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// readySteps returns the steps that are still Pending and whose
// dependencies are all Complete or Skipped, partitioned into a sequential slice
// (steps with no ParallelGroup, in plan order) and parallel groups
// (steps sharing a non-empty ParallelGroup key).
func readySteps(plan Plan, states map[string]*StepState) (sequential []Step, groups map[string][]Step) {
	groups = make(map[string][]Step)
	for _, step := range plan.Steps {
		state := states[step.ID]
		if state.Status != StepPending {
			continue
		}
		if !dependenciesComplete(step, states) {
			continue
		}
		if step.ParallelGroup != "" {
			groups[step.ParallelGroup] = append(groups[step.ParallelGroup], step)
		} else {
			sequential = append(sequential, step)
		}
	}
	return sequential, groups
}

func dependenciesComplete(step Step, states map[string]*StepState) bool {
	for _, dep := range step.DependsOn {
		if states[dep].Status != StepComplete && states[dep].Status != StepSkipped {
			return false
		}
	}
	return true
}
