package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/taskforge/store"
)

func taskFrom(t *testing.T, content string) *store.Task {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "task.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	task, err := store.Read(path)
	require.NoError(t, err)
	return task
}

func TestClassifyCoding(t *testing.T) {
	task := taskFrom(t, "---\ntitle: X\n---\nImplement a new API endpoint and write tests.\n")
	p := New()
	assert.Equal(t, CategoryCoding, p.Classify(task))
}

func TestClassifyCommunication(t *testing.T) {
	task := taskFrom(t, "---\ntitle: Announce Launch\nskill: email\n---\nSend an email to announce the product launch.\n")
	p := New()
	assert.Equal(t, CategoryCommunication, p.Classify(task))
}

func TestClassifyFallsBackToPlanning(t *testing.T) {
	task := taskFrom(t, "---\ntitle: X\n---\nSomething with no recognizable keywords at all.\n")
	p := New()
	assert.Equal(t, CategoryPlanning, p.Classify(task))
}

func TestEstimateComplexity(t *testing.T) {
	assert.Equal(t, ComplexityLow, EstimateComplexity("short body"))
	assert.Equal(t, ComplexityMedium, EstimateComplexity("- [ ] one checkbox only"))

	long := ""
	for i := 0; i < 600; i++ {
		long += "word "
	}
	assert.Equal(t, ComplexityHigh, EstimateComplexity(long))
}

func TestPlanAppendsSectionAndIsIdempotent(t *testing.T) {
	task := taskFrom(t, "---\ntitle: Build Feature\n---\nImplement a new API endpoint.\n")
	p := New()

	plan, err := p.Plan(task)
	require.NoError(t, err)
	assert.Equal(t, CategoryCoding, plan.Category)
	assert.True(t, task.HasSection(sectionHeading))
	assert.Equal(t, "coding", task.Header.GetDefault("skill", ""))
	assert.Equal(t, "planned", task.Status())

	firstBody := task.Body
	_, err = p.Plan(task)
	require.NoError(t, err)
	assert.Equal(t, firstBody, task.Body, "second call must not duplicate the plan section")
}
