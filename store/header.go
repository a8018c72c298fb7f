// Package store implements the Task Store: directory-based lifecycle
// stages and the header parser/rewriter every other component reads and
// writes task files through.
package store

import (
	"fmt"
	"strings"
)

// Header is the ordered key/value frontmatter of a task file. Order is
// preserved across reads and writes so a human diffing two revisions of
// a task file sees a minimal diff, and so header round-trips are
// byte-stable for unknown keys the core doesn't otherwise touch.
type Header struct {
	keys   []string
	values map[string]string
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{values: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (h *Header) Get(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	v, ok := h.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def if absent.
func (h *Header) GetDefault(key, def string) string {
	if v, ok := h.Get(key); ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Set writes key=value. Setting an existing key updates its value in
// place, preserving its original position; setting a new key appends it
// at the end. This is the idempotent "write header field" operation:
// writing the same value twice produces the same file.
func (h *Header) Set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, exists := h.values[key]; !exists {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Delete removes key, if present.
func (h *Header) Delete(key string) {
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Keys returns header keys in their preserved order.
func (h *Header) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	cp := NewHeader()
	for _, k := range h.keys {
		cp.Set(k, h.values[k])
	}
	return cp
}

// Render serializes the header back to its "---" delimited form.
func (h *Header) Render() string {
	var b strings.Builder
	b.WriteString("---\n")
	for _, k := range h.keys {
		fmt.Fprintf(&b, "%s: %s\n", k, h.values[k])
	}
	b.WriteString("---\n")
	return b.String()
}
