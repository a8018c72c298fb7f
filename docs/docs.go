// Package docs implements the Documentation Writer (spec's table row
// "Derives architecture and lessons docs from audit data"): it reads
// the Audit Stream and the Memory dashboard and renders markdown
// reports to disk. It never invents content from outside those two
// sources — a doc with nothing to report says so.
package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/itsneelabh/taskforge/audit"
	"github.com/itsneelabh/taskforge/memory"
)

// componentDescriptions pairs each package with the one-line role the
// spec's component table assigns it. Static, not derived from audit
// data — this is the one part of the architecture doc that describes
// the system rather than its history.
var componentDescriptions = []struct {
	Name string
	Role string
}{
	{"Domain Router", "Classifies an inbox file into a domain/category directory"},
	{"Planner", "Attaches an execution plan to a classified task"},
	{"Manager", "Resolves a skill and dispatches to its handler"},
	{"Approval Controller", "Diverts sensitive tasks to a human decision gate"},
	{"Skill Handler Registry", "Closed registry of skill id to handler"},
	{"Validator", "Inspects a handler's result and decides done/failed/revalidate"},
	{"Autonomy Loop", "Executes a multi-step plan with retry and crash recovery"},
	{"Resilience Controller", "Retry, fallback, and queueing for failing hops"},
	{"MCP Router", "Proxies declared actions to registered external services"},
	{"Scheduler", "Fires recurring or one-shot tasks on a cron/interval schedule"},
	{"Audit Stream", "Append-only record of every hop's event"},
	{"Memory/Dashboard", "Aggregates execution history into rollups"},
	{"Documentation Writer", "Derives architecture and lessons docs from audit data"},
}

// Generator reads audit/memory state and writes markdown reports.
type Generator struct {
	auditRoot  string
	outputRoot string
}

// New builds a Generator. auditRoot is the Audit Stream's root
// directory (the same root passed to audit.NewWriter); outputRoot is
// where rendered docs are written.
func New(auditRoot, outputRoot string) *Generator {
	return &Generator{auditRoot: auditRoot, outputRoot: outputRoot}
}

// GenerateArchitecture renders the static component overview enriched
// with live event-volume counts for the trailing window of days,
// pulled from audit.BuildDailySummary per day.
func (g *Generator) GenerateArchitecture(now time.Time, window int) (string, error) {
	totals := make(map[audit.Category]int)
	for i := 0; i < window; i++ {
		day := now.AddDate(0, 0, -i)
		summary, err := audit.BuildDailySummary(g.auditRoot, day)
		if err != nil {
			return "", fmt.Errorf("docs: architecture: %w", err)
		}
		for category, count := range summary.CategoryCount {
			totals[category] += count
		}
	}

	content := "# Architecture Overview\n\n" +
		"## Components\n\n"
	for _, c := range componentDescriptions {
		content += fmt.Sprintf("- **%s** — %s\n", c.Name, c.Role)
	}

	content += fmt.Sprintf("\n## Event Volume (last %d days)\n\n", window)
	for _, category := range orderedCategories() {
		content += fmt.Sprintf("- %s: %d\n", category, totals[category])
	}

	path := filepath.Join(g.outputRoot, "architecture.md")
	return path, writeFile(path, content)
}

// GenerateLessons renders a lessons-learned doc: the recurring failure
// kinds observed across the trailing window of days, merged and
// re-ranked across days rather than taken from a single day's top-5.
func (g *Generator) GenerateLessons(now time.Time, window int) (string, error) {
	errorCounts := make(map[string]int)
	var daysWithFailures int

	for i := 0; i < window; i++ {
		day := now.AddDate(0, 0, -i)
		summary, err := audit.BuildDailySummary(g.auditRoot, day)
		if err != nil {
			return "", fmt.Errorf("docs: lessons: %w", err)
		}
		if summary.CategoryCount[audit.CategoryFailure] > 0 {
			daysWithFailures++
		}
		for _, e := range summary.TopErrors {
			errorCounts[e.ErrorType] += e.Count
		}
	}

	content := "# Lessons Learned\n\n"
	if len(errorCounts) == 0 {
		content += fmt.Sprintf("No failures recorded in the last %d days.\n", window)
		path := filepath.Join(g.outputRoot, "lessons.md")
		return path, writeFile(path, content)
	}

	content += fmt.Sprintf("%d of the last %d days recorded at least one failure.\n\n", daysWithFailures, window)
	content += "## Recurring Failure Kinds\n\n"
	for _, e := range rankErrors(errorCounts) {
		content += fmt.Sprintf("- %s: %d\n", e.ErrorType, e.Count)
	}

	path := filepath.Join(g.outputRoot, "lessons.md")
	return path, writeFile(path, content)
}

// ErrorRank is one merged, re-ranked failure kind across a window.
type ErrorRank struct {
	ErrorType string
	Count     int
}

func rankErrors(counts map[string]int) []ErrorRank {
	ranked := make([]ErrorRank, 0, len(counts))
	for k, v := range counts {
		ranked = append(ranked, ErrorRank{ErrorType: k, Count: v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].ErrorType < ranked[j].ErrorType
	})
	return ranked
}

func orderedCategories() []audit.Category {
	return []audit.Category{
		audit.CategoryTaskLifecycle,
		audit.CategoryAgentDecision,
		audit.CategoryMCPCall,
		audit.CategoryFailure,
		audit.CategoryRetry,
		audit.CategorySystem,
	}
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("docs: create output directory: %w", err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// memoryDashboardLines renders a memory.Dashboard as markdown bullet
// lines, used by the briefing writer.
func memoryDashboardLines(d memory.Dashboard) string {
	content := fmt.Sprintf("- total: %d (success %d, failed %d)\n", d.Global.Total, d.Global.Success, d.Global.Failed)
	keys := make([]string, 0, len(d.ByDomainCategory))
	for k := range d.ByDomainCategory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := d.ByDomainCategory[k]
		content += fmt.Sprintf("  - %s: %d (success %d, failed %d)\n", k, r.Total, r.Success, r.Failed)
	}
	return content
}
