package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/taskforge/core"
)

func TestParseTaskWithHeader(t *testing.T) {
	content := "---\ntitle: Announce Launch\nstatus: received\nskill: email\n---\nSend the announcement to the list.\n"

	task, err := ParseTask(content)
	require.NoError(t, err)

	assert.Equal(t, "Announce Launch", task.Title())
	assert.Equal(t, "received", task.Status())
	assert.Equal(t, "Send the announcement to the list.\n", task.Body)
}

func TestParseTaskWithoutHeaderIsNotAnError(t *testing.T) {
	task, err := ParseTask("Just a plain inbox note, no frontmatter yet.\n")
	require.NoError(t, err)
	assert.Equal(t, "", task.Status())
	assert.Empty(t, task.Header.Keys())
}

func TestParseTaskMalformedHeaderLine(t *testing.T) {
	_, err := ParseTask("---\nthis is not key value\n---\nbody\n")
	assert.ErrorIs(t, err, core.ErrMalformedTask)
}

func TestParseTaskUnclosedHeader(t *testing.T) {
	_, err := ParseTask("---\ntitle: X\nbody without closing delimiter\n")
	assert.ErrorIs(t, err, core.ErrMalformedTask)
}

func TestHeaderSetPreservesOrderAndUpdatesInPlace(t *testing.T) {
	h := NewHeader()
	h.Set("title", "A")
	h.Set("status", "received")
	h.Set("title", "B")

	assert.Equal(t, []string{"title", "status"}, h.Keys())
	assert.Equal(t, "B", h.GetDefault("title", ""))
}

func TestRenderRoundTrip(t *testing.T) {
	original := "---\ntitle: X\nstatus: received\n---\nbody line\n"
	task, err := ParseTask(original)
	require.NoError(t, err)
	assert.Equal(t, original, task.Render())
}

func TestHasSectionAndAppendSectionIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nstatus: in_progress\n---\nDo the thing.\n"), 0o644))

	task, err := Read(path)
	require.NoError(t, err)
	assert.False(t, task.HasSection("## Execution Results"))

	require.NoError(t, AppendSection(task, "## Execution Results", "Done successfully."))
	assert.True(t, task.HasSection("## Execution Results"))

	firstBody := task.Body
	require.NoError(t, AppendSection(task, "## Execution Results", "Done successfully AGAIN."))
	assert.Equal(t, firstBody, task.Body, "second append must be a no-op")
}

func TestWriteFieldPersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nstatus: received\n---\nbody\n"), 0o644))

	task, err := Read(path)
	require.NoError(t, err)
	require.NoError(t, WriteField(task, "status", "classified"))

	reloaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "classified", reloaded.Status())
}

func TestMoveRelocatesFileAndUpdatesPath(t *testing.T) {
	srcDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "Domains", "Business", "marketing")
	path := filepath.Join(srcDir, "task.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nstatus: classified\n---\nbody\n"), 0o644))

	task, err := Read(path)
	require.NoError(t, err)
	require.NoError(t, Move(task, destDir))

	assert.Equal(t, filepath.Join(destDir, "task.md"), task.Path)
	assert.NoFileExists(t, path)
	assert.FileExists(t, task.Path)
}

func TestListPendingExcludesCompanionArtifactsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task-1.md"), []byte("---\nstatus: received\n---\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task-2.md"), []byte("---\nstatus: received\n---\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval_task-1.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queue_email_123.json"), []byte("{}"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	files, err := ListPending(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, filepath.Join(dir, "task-1.md"))
	assert.Contains(t, files, filepath.Join(dir, "task-2.md"))
}

func TestListPendingOnMissingDirReturnsEmpty(t *testing.T) {
	files, err := ListPending(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Nil(t, files)
}
