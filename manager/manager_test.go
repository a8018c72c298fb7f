package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/taskforge/approval"
	"github.com/itsneelabh/taskforge/memory"
	"github.com/itsneelabh/taskforge/skills"
	"github.com/itsneelabh/taskforge/store"
)

func taskFrom(t *testing.T, dir, name, content string) *store.Task {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	task, err := store.Read(path)
	require.NoError(t, err)
	return task
}

func TestDispatchUnknownSkillFails(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: X\nskill: nonexistent\n---\nDo something.\n")

	m := New(skills.NewRegistry(), approval.New())
	err := m.Dispatch(context.Background(), task, filepath.Join(dir, "Needs_Approval"))
	assert.Error(t, err)
	assert.Equal(t, "failed", task.Status())
	assert.True(t, task.HasSection("## Error"))
}

func TestDispatchRunsHandlerAndMarksDone(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: Write docs\nskill: documentation\npriority: standard\n---\nDocument the API.\n")

	m := New(skills.DefaultRegistry(), approval.New())
	err := m.Dispatch(context.Background(), task, filepath.Join(dir, "Needs_Approval"))
	require.NoError(t, err)

	assert.Equal(t, "done", task.Status())
	assert.True(t, task.Header.Has("completed"))
	assert.True(t, task.HasSection("## Execution Results"))
}

func TestDispatchDivertsSensitiveSkillToApproval(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: Send Newsletter\nskill: email\npriority: standard\n---\nSend the weekly email.\n")
	approvalDir := filepath.Join(dir, "Needs_Approval")

	m := New(skills.DefaultRegistry(), approval.New())
	require.NoError(t, m.Dispatch(context.Background(), task, approvalDir))

	assert.Equal(t, "pending_approval", task.Status())
	assert.Contains(t, task.Path, approvalDir)
}

func TestDispatchDivertsUrgentPriorityEvenWithoutSensitiveSkill(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: X\nskill: coding\npriority: urgent\n---\nFix the bug quickly.\n")
	approvalDir := filepath.Join(dir, "Needs_Approval")

	m := New(skills.DefaultRegistry(), approval.New())
	require.NoError(t, m.Dispatch(context.Background(), task, approvalDir))

	assert.Equal(t, "pending_approval", task.Status())
}

func TestDispatchRecordsMemoryOnDone(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: Write docs\nskill: documentation\npriority: standard\ndomain: Business\ndomain_category: writing\n---\nDocument the API.\n")

	var recorded []memory.Execution
	m := New(skills.DefaultRegistry(), approval.New(), WithMemory(func(exec memory.Execution) error {
		recorded = append(recorded, exec)
		return nil
	}))
	require.NoError(t, m.Dispatch(context.Background(), task, filepath.Join(dir, "Needs_Approval")))

	require.Len(t, recorded, 1)
	assert.True(t, recorded[0].Success)
	assert.Equal(t, "Business", recorded[0].Domain)
	assert.Equal(t, "writing", recorded[0].Category)
	assert.Equal(t, "documentation", recorded[0].Skill)
}

func TestDispatchBeatsHeartbeatBeforeInvokingHandler(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: Write docs\nskill: documentation\npriority: standard\n---\nDocument the API.\n")

	var beats []string
	m := New(skills.DefaultRegistry(), approval.New(), WithHeartbeat(func(agentID string) {
		beats = append(beats, agentID)
	}))
	require.NoError(t, m.Dispatch(context.Background(), task, filepath.Join(dir, "Needs_Approval")))

	assert.Equal(t, []string{"documentation"}, beats)
}

func TestDispatchDivertedTaskNeverBeatsHeartbeat(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: Send Newsletter\nskill: email\npriority: standard\n---\nSend the weekly email.\n")

	var beats []string
	m := New(skills.DefaultRegistry(), approval.New(), WithHeartbeat(func(agentID string) {
		beats = append(beats, agentID)
	}))
	require.NoError(t, m.Dispatch(context.Background(), task, filepath.Join(dir, "Needs_Approval")))

	assert.Empty(t, beats, "a task diverted to approval never reaches the handler, so it must not beat")
}

func TestDispatchRecordsMemoryOnFailure(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: X\nskill: nonexistent\n---\nDo something.\n")

	var recorded []memory.Execution
	m := New(skills.NewRegistry(), approval.New(), WithMemory(func(exec memory.Execution) error {
		recorded = append(recorded, exec)
		return nil
	}))
	require.Error(t, m.Dispatch(context.Background(), task, filepath.Join(dir, "Needs_Approval")))

	require.Len(t, recorded, 1)
	assert.False(t, recorded[0].Success)
}

func TestResolveSkillPrefersPlanOverHeader(t *testing.T) {
	task := taskFrom(t, t.TempDir(), "t.md", "---\ntitle: X\nskill: coding\n---\n## Execution Plan\n\n**Skill Required:** research\n")
	m := New(skills.DefaultRegistry(), approval.New())
	assert.Equal(t, "research", m.resolveSkill(task))
}

func partialHandler(_ context.Context, in skills.Input) (skills.Output, error) {
	return skills.Output{Success: false, Output: "halfway there", Error: "partial"}, nil
}

func TestValidateRevalidatesOnPartialSuccess(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: X\nskill: coding\npriority: standard\n---\nDo something.\n")

	registry := skills.NewRegistry()
	require.NoError(t, registry.Register(skills.Entry{SkillID: "coding", Handler: partialHandler, Priority: 1}))

	m := New(registry, approval.New())
	require.NoError(t, m.Dispatch(context.Background(), task, filepath.Join(dir, "Needs_Approval")))

	assert.Equal(t, "needs_action", task.Status())
	assert.Equal(t, "1", task.Header.GetDefault("revalidate_count", ""))
}

func TestValidateFailsAfterExceedingRevalidationCap(t *testing.T) {
	dir := t.TempDir()
	task := taskFrom(t, dir, "t.md", "---\ntitle: X\nskill: coding\npriority: standard\nrevalidate_count: 3\n---\nDo something.\n")

	registry := skills.NewRegistry()
	require.NoError(t, registry.Register(skills.Entry{SkillID: "coding", Handler: partialHandler, Priority: 1}))

	m := New(registry, approval.New())
	err := m.Dispatch(context.Background(), task, filepath.Join(dir, "Needs_Approval"))
	assert.Error(t, err)
	assert.Equal(t, "failed", task.Status())
}
