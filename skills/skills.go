// Package skills implements the Skill Handler Registry: a closed,
// declared mapping from skill id to handler, re-typed from the
// {skill_id, handler_reference, requires_approval, priority} entry the
// data model names.
package skills

import (
	"context"
	"fmt"
)

// Input is the normalized view of a task a handler receives. It is the
// only thing a handler is allowed to depend on — never a *store.Task
// directly — so skill bodies stay decoupled from the task file format.
type Input struct {
	Title    string
	Priority string
	Body     string
	Header   map[string]string
	Path     string
}

// Output is a handler's result. Deliverables is a checklist of
// artifact descriptions the handler produced, written into the task's
// "## Execution Results" section by the caller.
type Output struct {
	Success      bool
	Output       string
	Deliverables []string
	Error        string
}

// Handler is the public contract a skill body must satisfy.
type Handler func(ctx context.Context, in Input) (Output, error)

// Entry is a declared skill registry entry.
type Entry struct {
	SkillID          string
	Handler          Handler
	RequiresApproval bool
	Priority         int
}

// Registry is the closed set of known skills. Skills not present here
// are unknown and dispatch must fail per spec rather than guess a
// default handler.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces a skill entry.
func (r *Registry) Register(e Entry) error {
	if e.SkillID == "" {
		return fmt.Errorf("skills: entry requires a non-empty skill id")
	}
	if e.Handler == nil {
		return fmt.Errorf("skills: entry %q requires a handler", e.SkillID)
	}
	r.entries[e.SkillID] = e
	return nil
}

// Lookup returns the entry for id, and whether it is registered.
func (r *Registry) Lookup(id string) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// RequiresApproval reports whether the named skill itself declares an
// approval gate. An unknown skill reports false; the caller is
// expected to have already checked Lookup.
func (r *Registry) RequiresApproval(id string) bool {
	e, ok := r.entries[id]
	return ok && e.RequiresApproval
}

// IDs returns the registered skill ids, for diagnostics and tests.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}
