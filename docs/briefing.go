package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/itsneelabh/taskforge/audit"
	"github.com/itsneelabh/taskforge/memory"
)

// DailyBriefing is the CEO-facing digest supplemented from
// ceo_briefing_agent.py: a same-day rollup of event counts, top
// failures, and outstanding approvals, built from the same Audit
// Stream and Memory data the architecture/lessons docs already read.
type DailyBriefing struct {
	Date             string
	CategoryCount    map[audit.Category]int
	TopErrors        []audit.ErrorFrequency
	Dashboard        memory.Dashboard
	PendingApprovals int
}

// GenerateDailyBriefing builds and renders today's briefing.
// approvalDir, if non-empty, is counted for outstanding approval
// artifacts (every ".md" file in it); pass "" if the caller has no
// approval directory configured.
func (g *Generator) GenerateDailyBriefing(now time.Time, mem *memory.Store, approvalDir string) (string, error) {
	summary, err := audit.BuildDailySummary(g.auditRoot, now)
	if err != nil {
		return "", fmt.Errorf("docs: briefing: %w", err)
	}

	briefing := DailyBriefing{
		Date:          summary.Date,
		CategoryCount: summary.CategoryCount,
		TopErrors:     summary.TopErrors,
		Dashboard:     mem.Dashboard(),
	}
	if approvalDir != "" {
		briefing.PendingApprovals = countMarkdownFiles(approvalDir)
	}

	content := renderBriefing(briefing)
	path := filepath.Join(g.outputRoot, "briefings", briefing.Date+".md")
	return path, writeFile(path, content)
}

func renderBriefing(b DailyBriefing) string {
	content := fmt.Sprintf("# Daily Briefing: %s\n\n## Today's Activity\n\n", b.Date)
	for _, category := range orderedCategories() {
		content += fmt.Sprintf("- %s: %d\n", category, b.CategoryCount[category])
	}

	content += "\n## Execution Totals (all time)\n\n"
	content += memoryDashboardLines(b.Dashboard)

	content += "\n## Top Failures Today\n\n"
	if len(b.TopErrors) == 0 {
		content += "none\n"
	}
	for _, e := range b.TopErrors {
		content += fmt.Sprintf("- %s: %d\n", e.ErrorType, e.Count)
	}

	content += fmt.Sprintf("\n## Pending Approvals\n\n%d task(s) awaiting a decision.\n", b.PendingApprovals)
	return content
}

func countMarkdownFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".md" {
			count++
		}
	}
	return count
}
