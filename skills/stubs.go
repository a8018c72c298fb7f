package skills

import (
	"context"
	"fmt"
)

// echoHandler is the simplest possible handler: it reports success and
// echoes the task title into its output. Real skill bodies are out of
// scope; these stubs exist so the Manager has something concrete to
// dispatch to in tests and as a template for real implementations.
func echoHandler(label string) Handler {
	return func(_ context.Context, in Input) (Output, error) {
		return Output{
			Success: true,
			Output:  fmt.Sprintf("%s handled %q", label, in.Title),
		}, nil
	}
}

// DefaultRegistry returns the closed registry of illustrative skills
// named by the planner's category→skill mapping and the approval
// sensitivity tags. Production deployments register their own handlers
// over or instead of these.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	entries := []Entry{
		{SkillID: "coding", Handler: echoHandler("coding"), Priority: 1},
		{SkillID: "research", Handler: echoHandler("research"), Priority: 1},
		{SkillID: "documentation", Handler: echoHandler("documentation"), Priority: 1},
		{SkillID: "planner", Handler: echoHandler("planner"), Priority: 1},
		{SkillID: "approval", Handler: echoHandler("approval"), Priority: 1},
		{SkillID: "email", Handler: echoHandler("email"), RequiresApproval: true, Priority: 2},
		{SkillID: "social_post", Handler: echoHandler("social_post"), RequiresApproval: true, Priority: 2},
		{SkillID: "payment", Handler: echoHandler("payment"), RequiresApproval: true, Priority: 3},
		{SkillID: "database_change", Handler: echoHandler("database_change"), RequiresApproval: true, Priority: 3},
		{SkillID: "production_deploy", Handler: echoHandler("production_deploy"), RequiresApproval: true, Priority: 3},
		{SkillID: "credential_access", Handler: echoHandler("credential_access"), RequiresApproval: true, Priority: 3},
		{SkillID: "data_export", Handler: echoHandler("data_export"), RequiresApproval: true, Priority: 2},
	}
	for _, e := range entries {
		_ = r.Register(e)
	}
	return r
}
