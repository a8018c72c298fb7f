package docs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/taskforge/memory"
)

func TestGenerateArchitectureIncludesComponentsAndVolume(t *testing.T) {
	auditRoot := t.TempDir()
	outRoot := t.TempDir()
	now := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)

	writeFailureLog(t, auditRoot, now, "timeout", 2)

	gen := New(auditRoot, outRoot)
	path, err := gen.GenerateArchitecture(now, 7)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "Domain Router")
	assert.Contains(t, body, "Documentation Writer")
	assert.Contains(t, body, "Event Volume")
	assert.Contains(t, body, "failure: 2")
}

func TestGenerateLessonsReportsNoFailuresWhenNoneRecorded(t *testing.T) {
	auditRoot := t.TempDir()
	outRoot := t.TempDir()

	gen := New(auditRoot, outRoot)
	path, err := gen.GenerateLessons(time.Now().UTC(), 7)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No failures recorded")
}

func TestGenerateLessonsRanksRecurringFailures(t *testing.T) {
	auditRoot := t.TempDir()
	outRoot := t.TempDir()
	now := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)

	writeFailureLog(t, auditRoot, now, "timeout", 5)
	writeFailureLog(t, auditRoot, now, "timeout", 3)
	writeFailureLog(t, auditRoot, now.AddDate(0, 0, -1), "timeout", 2)
	writeFailureLog(t, auditRoot, now, "validation_error", 1)

	gen := New(auditRoot, outRoot)
	path, err := gen.GenerateLessons(now, 7)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "timeout")
	timeoutIdx := indexOf(body, "timeout")
	validationIdx := indexOf(body, "validation_error")
	assert.Less(t, timeoutIdx, validationIdx, "higher-count error should rank first")
}

func TestGenerateDailyBriefingIncludesApprovalsAndDashboard(t *testing.T) {
	auditRoot := t.TempDir()
	outRoot := t.TempDir()
	memRoot := t.TempDir()
	approvalDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(approvalDir, "a.md"), []byte("pending"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(approvalDir, "b.md"), []byte("pending"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(approvalDir, "notes.txt"), []byte("ignore me"), 0o644))

	mem, err := memory.NewStore(memRoot)
	require.NoError(t, err)
	require.NoError(t, mem.Record(memory.Execution{TaskID: "t1", Domain: "business", Category: "finance", Success: true, CompletedAt: time.Now().UTC()}))

	gen := New(auditRoot, outRoot)
	path, err := gen.GenerateDailyBriefing(time.Now().UTC(), mem, approvalDir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "2 task(s) awaiting a decision")
	assert.Contains(t, body, "business/finance")
}

func writeFailureLog(t *testing.T, root string, day time.Time, errorType string, count int) {
	t.Helper()
	dir := filepath.Join(root, "failure", day.Format("2006-01"))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	f, err := os.OpenFile(filepath.Join(dir, "failure.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	for i := 0; i < count; i++ {
		line := `{"timestamp":"` + day.Format(time.RFC3339) + `","category":"failure","event_name":"failed","details":{"error_type":"` + errorType + `"}}` + "\n"
		_, err := f.WriteString(line)
		require.NoError(t, err)
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
