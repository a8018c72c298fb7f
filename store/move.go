package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Move relocates a task file to a new stage directory, creating the
// destination directory if needed, and updates t.Path in place. Move
// first tries a rename (the common case: same filesystem, same volume);
// if that fails across devices it falls back to atomic copy-then-remove
// so stage transitions never observe a partially written file at the
// destination.
func Move(t *Task, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	dest := filepath.Join(destDir, filepath.Base(t.Path))

	if err := os.Rename(t.Path, dest); err != nil {
		if !os.IsExist(err) {
			data, rerr := os.ReadFile(t.Path)
			if rerr != nil {
				return fmt.Errorf("move task (rename failed: %v): read source: %w", err, rerr)
			}
			if werr := writeFileAtomic(dest, data); werr != nil {
				return fmt.Errorf("move task (rename failed: %v): write destination: %w", err, werr)
			}
			if rmErr := os.Remove(t.Path); rmErr != nil {
				return fmt.Errorf("move task: remove source after copy: %w", rmErr)
			}
		}
	}

	t.Path = dest
	return nil
}

// MoveTo is a convenience wrapper that joins stage path segments, mirroring
// core.Config.Dir's signature so callers can write Move(t, cfg.Dir("Done")).
func MoveTo(t *Task, root string, parts ...string) error {
	return Move(t, filepath.Join(append([]string{root}, parts...)...))
}
