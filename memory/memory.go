// Package memory implements the Memory/Dashboard component (spec's
// table row "Aggregates execution history into persistent summaries"):
// it records one Execution per completed task and keeps a running
// rollup of outcomes, both globally and per domain/category, so a
// dashboard (or the docs package's daily briefing) can read current
// totals without re-scanning history.
package memory

import "time"

// Execution is a single completed task's outcome, the unit this
// package persists and rolls up.
type Execution struct {
	TaskID      string        `json:"task_id"`
	Domain      string        `json:"domain"`
	Category    string        `json:"category"`
	Skill       string        `json:"skill"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Rollup is a running tally of outcomes.
type Rollup struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

func (r *Rollup) add(success bool) {
	r.Total++
	if success {
		r.Success++
	} else {
		r.Failed++
	}
}

// Dashboard is a point-in-time snapshot of the Memory rollups: a
// global tally (spec.md §4.12) plus a per-(domain, category) subtotal
// (supplemented from memory_agent.py's per-domain rollups).
type Dashboard struct {
	Global           Rollup            `json:"global"`
	ByDomainCategory map[string]Rollup `json:"by_domain_category"`
}

func domainCategoryKey(domain, category string) string {
	return domain + "/" + category
}
