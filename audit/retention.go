package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PruneResult reports what retention pruning removed.
type PruneResult struct {
	RemovedDirs []string
}

// Prune walks every category directory under root and removes monthly
// log directories (named YYYY-MM) whose entire month has aged past
// that category's Retention window. Pruning is month-granular rather
// than line-granular: a partially-expired month is kept whole until
// its last day crosses the threshold, matching how the logs are
// partitioned on write.
func Prune(root string, now time.Time) (PruneResult, error) {
	var result PruneResult

	for category, window := range Retention {
		categoryDir := filepath.Join(root, string(category))
		entries, err := os.ReadDir(categoryDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return result, fmt.Errorf("audit: read category directory %s: %w", categoryDir, err)
		}

		cutoff := now.Add(-window)
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			monthEnd, ok := monthDirEnd(entry.Name())
			if !ok {
				continue
			}
			if monthEnd.Before(cutoff) {
				path := filepath.Join(categoryDir, entry.Name())
				if err := os.RemoveAll(path); err != nil {
					return result, fmt.Errorf("audit: remove expired log directory %s: %w", path, err)
				}
				result.RemovedDirs = append(result.RemovedDirs, path)
			}
		}
	}

	return result, nil
}

// monthDirEnd parses a "YYYY-MM" directory name and returns the first
// instant of the following month (i.e. the month's exclusive end).
func monthDirEnd(name string) (time.Time, bool) {
	t, err := time.Parse("2006-01", name)
	if err != nil {
		return time.Time{}, false
	}
	return t.AddDate(0, 1, 0), true
}
