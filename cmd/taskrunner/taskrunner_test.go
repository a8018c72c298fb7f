package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/taskforge/autonomy"
	"github.com/itsneelabh/taskforge/core"
	"github.com/itsneelabh/taskforge/mcp"
	"github.com/itsneelabh/taskforge/resilience"
	"github.com/itsneelabh/taskforge/skills"
)

func TestRegisterSkillsCoversEveryRouterDeclaredSkill(t *testing.T) {
	reg := skills.NewRegistry()
	registerSkills(reg)

	for _, id := range []string{"coding", "research", "documentation", "planner", "email", "linkedin_marketing", "approval"} {
		_, ok := reg.Lookup(id)
		assert.True(t, ok, "expected skill %q to be registered", id)
	}

	entry, _ := reg.Lookup("email")
	assert.True(t, entry.RequiresApproval, "email skill should require approval")

	out, err := entry.Handler(context.Background(), skills.Input{Title: "newsletter blast"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.Deliverables)
}

func TestResilienceRetryDeciderRespectsMaxAttemptsAndRetryability(t *testing.T) {
	decider := newResilienceRetryDecider(resilience.RetryPolicy{MaxAttempts: 3})

	assert.True(t, decider.ShouldRetry(context.Background(), "email", 1, core.ErrUpstreamFailure))
	assert.False(t, decider.ShouldRetry(context.Background(), "email", 3, core.ErrUpstreamFailure), "attempt at the cap should not retry")
	assert.False(t, decider.ShouldRetry(context.Background(), "email", 1, errors.New("not classified as retryable")))
	assert.False(t, decider.ShouldRetry(context.Background(), "email", 1, nil))
}

func TestMCPCallActionFallsBackWhenServiceOffline(t *testing.T) {
	registry := mcp.NewRegistry()
	registry.Register(mcp.ServiceEntry{
		Name:            "linkedin",
		BaseEndpoint:    "http://127.0.0.1:0",
		Actions:         []string{"post"},
		FallbackEnabled: true,
	})
	router := mcp.New(registry)
	action := mcpCallAction(router)

	out, err := action(context.Background(), autonomy.ActionInput{
		Step:      autonomy.Step{ID: "post-update", Condition: "linkedin/post"},
		Variables: map[string]string{"message": "shipped it"},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.Contains(t, out.Outputs["result"], "degraded")
}

func TestMCPCallActionRejectsMalformedCondition(t *testing.T) {
	router := mcp.New(mcp.NewRegistry())
	action := mcpCallAction(router)

	_, err := action(context.Background(), autonomy.ActionInput{
		Step: autonomy.Step{ID: "bad-step", Condition: "no-slash-here"},
	})
	assert.Error(t, err)
}

func TestEnsureScheduleFileCreatesDefaultOnlyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yaml")

	require.NoError(t, ensureScheduleFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "schedules: []\n", string(data))

	require.NoError(t, os.WriteFile(path, []byte("schedules:\n  - name: existing\n"), 0o644))
	require.NoError(t, ensureScheduleFile(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "schedules:\n  - name: existing\n", string(data), "must not overwrite an existing schedule file")
}
