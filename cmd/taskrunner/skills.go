package main

import (
	"context"
	"fmt"

	"github.com/itsneelabh/taskforge/skills"
)

// registerSkills declares the illustrative skill handlers this process
// ships with. Skill bodies are explicitly out of scope (the runtime's
// contribution is the registry and dispatch discipline, not a
// particular skill's business logic) — each handler here stands in for
// the corresponding original_source agent (coding_agent.py,
// email_agent.py, ...) with a deterministic, side-effect-free body so
// the pipeline is exercisable end to end without external services.
func registerSkills(reg *skills.Registry) {
	register := func(id string, requiresApproval bool, fn func(skills.Input) skills.Output) {
		_ = reg.Register(skills.Entry{
			SkillID:          id,
			RequiresApproval: requiresApproval,
			Handler: func(_ context.Context, in skills.Input) (skills.Output, error) {
				return fn(in), nil
			},
		})
	}

	register("coding", false, func(in skills.Input) skills.Output {
		return skills.Output{
			Success:      true,
			Output:       "implemented: " + in.Title,
			Deliverables: []string{"code change", "tests"},
		}
	})

	register("research", false, func(in skills.Input) skills.Output {
		return skills.Output{
			Success:      true,
			Output:       "researched: " + in.Title,
			Deliverables: []string{"findings summary", "sources"},
		}
	})

	register("documentation", false, func(in skills.Input) skills.Output {
		return skills.Output{
			Success:      true,
			Output:       "documented: " + in.Title,
			Deliverables: []string{"written document"},
		}
	})

	register("planner", false, func(in skills.Input) skills.Output {
		return skills.Output{
			Success:      true,
			Output:       "planned: " + in.Title,
			Deliverables: []string{"plan outline"},
		}
	})

	register("email", true, func(in skills.Input) skills.Output {
		return skills.Output{
			Success:      true,
			Output:       fmt.Sprintf("drafted email for %q", in.Title),
			Deliverables: []string{"email draft"},
		}
	})

	register("linkedin_marketing", true, func(in skills.Input) skills.Output {
		return skills.Output{
			Success:      true,
			Output:       fmt.Sprintf("drafted social post for %q", in.Title),
			Deliverables: []string{"post draft"},
		}
	})

	register("approval", false, func(in skills.Input) skills.Output {
		return skills.Output{
			Success:      true,
			Output:       "reviewed: " + in.Title,
			Deliverables: []string{"review notes"},
		}
	})
}
