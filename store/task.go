package store

// Task is the in-memory representation of a task file: its current
// path, parsed header, and body. The file on disk remains the durable
// state; Task is a snapshot taken at Read time.
type Task struct {
	Path   string
	Header *Header
	Body   string
}

// Status returns the task's status header field, or "" if absent.
func (t *Task) Status() string {
	return t.Header.GetDefault("status", "")
}

// Title returns the task's title header field, or "" if absent.
func (t *Task) Title() string {
	return t.Header.GetDefault("title", "")
}

// HasSection reports whether the body already contains a markdown
// section with the given heading (e.g. "## Execution Results"). Callers
// use this to implement idempotent appends: a skill handler invoked
// twice for the same task must not duplicate its results section.
func (t *Task) HasSection(heading string) bool {
	return hasSection(t.Body, heading)
}
