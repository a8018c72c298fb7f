package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const filePerm = 0o644

// writeFileAtomic writes data to path by writing to a sibling temp file and
// renaming it into place, so a crash mid-write never leaves a half-written
// task file for a concurrent reader (the manager's poll loop and an
// operator's editor may both be looking at this directory).
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Read loads and parses the task file at path.
func Read(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	task, err := ParseTask(string(data))
	if err != nil {
		return nil, err
	}
	task.Path = path
	return task, nil
}

// Write renders and atomically persists a task to its current Path.
func Write(t *Task) error {
	return writeFileAtomic(t.Path, []byte(t.Render()))
}

// WriteField sets a single header field and persists the task. Callers use
// this for single-field transitions (status changes, domain tags) so they
// don't need to read-modify-write the whole header themselves.
func WriteField(t *Task, key, value string) error {
	t.Header.Set(key, value)
	return Write(t)
}

// AppendSection appends a markdown section to the task body and persists
// it, unless a section with the same heading already exists — making the
// append idempotent for handlers that may be invoked more than once for
// the same task (retries, re-dispatch after a crash).
func AppendSection(t *Task, heading, content string) error {
	if t.HasSection(heading) {
		return nil
	}
	if t.Body != "" && t.Body[len(t.Body)-1] != '\n' {
		t.Body += "\n"
	}
	t.Body += "\n" + heading + "\n\n" + content + "\n"
	return Write(t)
}
