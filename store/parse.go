package store

import (
	"fmt"
	"strings"

	"github.com/itsneelabh/taskforge/core"
)

const delimiter = "---"

// ParseTask splits raw task-file content into a header and body.
//
// A header is recognized only when the file's first line is the "---"
// delimiter; everything from there to the next "---" line is parsed as
// key: value pairs. A file that does not start with the delimiter has no
// recognized header (an empty one is returned, not an error) — this is
// the inbox case described in spec §3 ("received: no domain header").
// A file that *starts* the delimiter but never closes it, or whose
// header region contains a line that is neither blank nor "key: value",
// is malformed.
func ParseTask(content string) (*Task, error) {
	lines := strings.Split(content, "\n")

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delimiter {
		return &Task{Header: NewHeader(), Body: content}, nil
	}

	header := NewHeader()
	closed := false
	bodyStart := 0

	for i := 1; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == delimiter {
			closed = true
			bodyStart = i + 1
			break
		}
		if trimmed == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, fmt.Errorf("%w: header line %d is not \"key: value\": %q", core.ErrMalformedTask, i+1, line)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, fmt.Errorf("%w: header line %d has empty key", core.ErrMalformedTask, i+1)
		}
		header.Set(key, value)
	}

	if !closed {
		return nil, fmt.Errorf("%w: header delimiter never closed", core.ErrMalformedTask)
	}

	body := ""
	if bodyStart < len(lines) {
		body = strings.Join(lines[bodyStart:], "\n")
		body = strings.TrimPrefix(body, "\n")
	}

	return &Task{Header: header, Body: body}, nil
}

// Render serializes a Task back to the on-disk format.
func (t *Task) Render() string {
	if len(t.Header.Keys()) == 0 {
		return t.Body
	}
	var b strings.Builder
	b.WriteString(t.Header.Render())
	if t.Body != "" {
		b.WriteString(t.Body)
		if !strings.HasSuffix(t.Body, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// hasSection reports whether body contains a line exactly equal to
// heading (a markdown "## Section Name" line).
func hasSection(body, heading string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == heading {
			return true
		}
	}
	return false
}
