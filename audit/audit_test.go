package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPartitionsByCategoryAndFlushes(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Record(context.Background(), map[string]interface{}{"category": "task_lifecycle", "event": "moved", "agent_id": "manager"})
	w.Record(context.Background(), map[string]interface{}{"category": "mcp_call", "event": "call"})

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	month := time.Now().UTC().Format("2006-01")
	lifecyclePath := filepath.Join(dir, "task_lifecycle", month, "task_lifecycle.log")
	mcpPath := filepath.Join(dir, "mcp_call", month, "mcp_call.log")

	assert.FileExists(t, lifecyclePath)
	assert.FileExists(t, mcpPath)

	events, err := readEvents(lifecyclePath)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "moved", events[0].EventName)
	assert.Equal(t, "manager", events[0].AgentID)
}

func TestRecordUnknownCategoryDefaultsToSystem(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Record(context.Background(), map[string]interface{}{"event": "mystery"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	month := time.Now().UTC().Format("2006-01")
	events, err := readEvents(filepath.Join(dir, "system", month, "system.log"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, CategorySystem, events[0].Category)
}

func TestReadEventsSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	month := time.Now().UTC().Format("2006-01")
	logDir := filepath.Join(dir, "failure", month)
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	path := filepath.Join(logDir, "failure.log")

	content := `{"timestamp":"2026-07-30T10:00:00Z","category":"failure","event_name":"boom"}
not valid json at all
{"timestamp":"2026-07-30T11:00:00Z","category":"failure","event_name":"boom2"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	events, err := readEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "boom", events[0].EventName)
	assert.Equal(t, "boom2", events[1].EventName)
}

func TestBuildDailySummaryTalliesCategoriesAndTopErrors(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	month := date.Format("2006-01")

	logDir := filepath.Join(dir, "failure", month)
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	content := `{"timestamp":"2026-07-30T10:00:00Z","category":"failure","event_name":"e1","details":{"error_type":"timeout"}}
{"timestamp":"2026-07-30T11:00:00Z","category":"failure","event_name":"e2","details":{"error_type":"timeout"}}
{"timestamp":"2026-07-30T12:00:00Z","category":"failure","event_name":"e3","details":{"error_type":"not_found"}}
{"timestamp":"2026-07-29T12:00:00Z","category":"failure","event_name":"e4","details":{"error_type":"other_day"}}
`
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "failure.log"), []byte(content), 0o644))

	summary, err := BuildDailySummary(dir, date)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.CategoryCount[CategoryFailure])
	require.NotEmpty(t, summary.TopErrors)
	assert.Equal(t, "timeout", summary.TopErrors[0].ErrorType)
	assert.Equal(t, 2, summary.TopErrors[0].Count)
}

func TestWriteSummaryFileProducesMarkdown(t *testing.T) {
	dir := t.TempDir()
	summary := DailySummary{
		Date:          "2026-07-30",
		CategoryCount: map[Category]int{CategoryFailure: 2},
		TopErrors:     []ErrorFrequency{{ErrorType: "timeout", Count: 2}},
	}
	path, err := WriteSummaryFile(dir, summary)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestPruneRemovesExpiredMonthDirectories(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	expiredDir := filepath.Join(dir, "mcp_call", "2026-05")
	keptDir := filepath.Join(dir, "mcp_call", "2026-07")
	require.NoError(t, os.MkdirAll(expiredDir, 0o755))
	require.NoError(t, os.MkdirAll(keptDir, 0o755))

	result, err := Prune(dir, now)
	require.NoError(t, err)
	assert.Contains(t, result.RemovedDirs, expiredDir)
	assert.NoDirExists(t, expiredDir)
	assert.DirExists(t, keptDir)
}

func TestPruneIgnoresMissingCategoryDirectory(t *testing.T) {
	dir := t.TempDir()
	result, err := Prune(dir, time.Now())
	require.NoError(t, err)
	assert.Empty(t, result.RemovedDirs)
}
