package manager

import (
	"context"

	"github.com/itsneelabh/taskforge/skills"
	"github.com/itsneelabh/taskforge/store"
)

// ValidationOutcome is the Validator's verdict on a completed handler
// invocation (spec's Validator component, table row "Verifies
// completion, transitions file to terminal state"). Three-way rather
// than a plain done/failed bool per validator_agent.py's partial-
// success detection: a handler can report enough progress to be worth
// another pass (status needs_action) instead of an outright failure.
type ValidationOutcome string

const (
	ValidationDone       ValidationOutcome = "done"
	ValidationFailed     ValidationOutcome = "failed"
	ValidationRevalidate ValidationOutcome = "revalidate"
)

// maxRevalidations bounds how many extra passes a partially-complete
// result gets before the Manager treats it as a hard failure instead
// of looping forever.
const maxRevalidations = 3

// Validator inspects a skill handler's result against the task and
// decides whether the file is done, has failed, or needs one more
// pass.
type Validator interface {
	Validate(ctx context.Context, t *store.Task, out skills.Output) ValidationOutcome
}

// DefaultValidator implements the plain rule every stub handler in
// this repo satisfies: Success with no special error marker is done;
// a handler that wants a revalidate pass sets Output.Error to
// "partial" instead of returning Success=false outright.
type DefaultValidator struct{}

func (DefaultValidator) Validate(_ context.Context, _ *store.Task, out skills.Output) ValidationOutcome {
	if out.Success {
		return ValidationDone
	}
	if out.Error == "partial" {
		return ValidationRevalidate
	}
	return ValidationFailed
}
