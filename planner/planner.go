// Package planner implements the Planner: it categorizes a task,
// chooses a skill, and appends a "## Execution Plan" section with a
// category-specific step template. The planner never executes
// anything — it only produces the plan the Manager later dispatches.
package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/itsneelabh/taskforge/core"
	"github.com/itsneelabh/taskforge/store"
)

// Category is the closed set of work categories the planner recognizes.
type Category string

const (
	CategoryCoding         Category = "coding"
	CategoryResearch       Category = "research"
	CategoryDocumentation  Category = "documentation"
	CategoryPlanning       Category = "planning"
	CategoryCommunication  Category = "communication"
	CategoryReview         Category = "review"
)

// Complexity is the closed set of complexity buckets.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// categoryKeywords mirrors the teacher's CATEGORY_KEYWORDS table,
// extended with the communication and review categories spec's
// algorithm names but the teacher's planner agent did not implement.
var categoryKeywords = map[Category][]string{
	CategoryCoding: {
		"code", "function", "api", "script", "implement", "build",
		"develop", "refactor", "debug", "test", "endpoint", "module",
		".py", ".js", ".ts", ".java", ".cpp", ".sh",
	},
	CategoryResearch: {
		"research", "analyze", "investigate", "explore", "compare",
		"evaluate", "study", "find", "search", "review", "survey",
	},
	CategoryDocumentation: {
		"document", "write", "readme", "guide", "tutorial",
		"explain", "describe", "update docs", "manual",
	},
	CategoryPlanning: {
		"plan", "strategy", "roadmap", "design", "architecture",
		"outline", "structure", "organize", "project", "timeline",
	},
	CategoryCommunication: {
		"email", "message", "announce", "notify", "reach out",
		"linkedin", "social post", "reply", "respond", "outreach",
	},
	CategoryReview: {
		"review", "audit", "approve", "inspect", "verify completion",
		"assess", "critique", "feedback", "sign off",
	},
}

// skillMap mirrors the teacher's SKILL_MAP, extended for the two added
// categories.
var skillMap = map[Category]string{
	CategoryCoding:        "coding",
	CategoryResearch:      "research",
	CategoryDocumentation: "documentation",
	CategoryPlanning:      "planner",
	CategoryCommunication: "email",
	CategoryReview:        "approval",
}

// stepTemplate declares the ordered steps and deliverables emitted for
// one category.
type stepTemplate struct {
	steps        []string
	deliverables []string
	duration     string
}

var templates = map[Category]stepTemplate{
	CategoryCoding: {
		steps: []string{
			"Read and understand requirements",
			"Design solution approach",
			"Implement code",
			"Write tests",
			"Test implementation",
			"Document changes",
			"Verify completion",
		},
		deliverables: []string{"Working code", "Tests", "Documentation"},
		duration:     "30-60 minutes",
	},
	CategoryResearch: {
		steps: []string{
			"Define research questions",
			"Gather information from sources",
			"Analyze findings",
			"Compare alternatives",
			"Formulate recommendation",
			"Document findings",
			"Verify completion",
		},
		deliverables: []string{"Research report", "Comparison matrix", "Recommendation"},
		duration:     "45-90 minutes",
	},
	CategoryDocumentation: {
		steps: []string{
			"Understand target audience",
			"Gather source materials",
			"Create document outline",
			"Write content",
			"Add examples",
			"Review and refine",
			"Verify completion",
		},
		deliverables: []string{"Documentation file", "Examples", "Cross-references"},
		duration:     "30-60 minutes",
	},
	CategoryPlanning: {
		steps: []string{
			"Clarify goals and objectives",
			"Identify scope and constraints",
			"Break down into tasks",
			"Identify dependencies",
			"Create timeline",
			"Document plan",
			"Verify completion",
		},
		deliverables: []string{"Project plan", "Task breakdown", "Timeline"},
		duration:     "20-45 minutes",
	},
	CategoryCommunication: {
		steps: []string{
			"Identify recipient and channel",
			"Draft the message",
			"Check tone and accuracy",
			"Send or queue for approval",
			"Verify completion",
		},
		deliverables: []string{"Sent message", "Delivery confirmation"},
		duration:     "10-20 minutes",
	},
	CategoryReview: {
		steps: []string{
			"Gather the artifact under review",
			"Check against declared criteria",
			"Note findings and risks",
			"Record a decision",
			"Verify completion",
		},
		deliverables: []string{"Review notes", "Decision record"},
		duration:     "15-30 minutes",
	},
}

const sectionHeading = "## Execution Plan"

// Plan is the outcome of planning one task.
type Plan struct {
	Category   Category
	Skill      string
	Complexity Complexity
	Duration   string
	Steps      []string
	Deliverables []string
}

// Planner produces execution plans for task files.
type Planner struct {
	logger core.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger injects a logger; defaults to core.NoOpLogger{}.
func WithLogger(l core.Logger) Option {
	return func(p *Planner) {
		if l == nil {
			return
		}
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			p.logger = cal.WithComponent("planner")
		} else {
			p.logger = l
		}
	}
}

// New creates a Planner.
func New(opts ...Option) *Planner {
	p := &Planner{logger: core.NoOpLogger{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classify categorizes t by keyword score, giving extra weight to an
// explicit header skill hint, and falls back to "planning" when no
// category scores above zero.
func (p *Planner) Classify(t *store.Task) Category {
	text := strings.ToLower(t.Body)
	scores := make(map[Category]int, len(categoryKeywords))

	if skill, ok := t.Header.Get("skill"); ok {
		skillLower := strings.ToLower(skill)
		for category, keywords := range categoryKeywords {
			if strings.Contains(skillLower, string(category)) || anyContains(skillLower, keywords) {
				scores[category] += 10
			}
		}
	}

	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				scores[category]++
			}
		}
	}

	best := CategoryPlanning
	bestScore := 0
	for _, category := range orderedCategories {
		if scores[category] > bestScore {
			best = category
			bestScore = scores[category]
		}
	}
	return best
}

// SkillFor returns the skill name the declared category→skill mapping
// assigns to category. Used by the Manager to resolve a skill from
// content classification without duplicating the mapping table.
func SkillFor(category Category) string {
	return skillMap[category]
}

// orderedCategories fixes iteration order so ties resolve deterministically.
var orderedCategories = []Category{
	CategoryCoding, CategoryResearch, CategoryDocumentation,
	CategoryPlanning, CategoryCommunication, CategoryReview,
}

// EstimateComplexity derives a complexity bucket from body length, the
// presence of fenced code blocks, and the number of open checkboxes.
func EstimateComplexity(body string) Complexity {
	wordCount := len(strings.Fields(body))
	hasCode := strings.Contains(body, "```")
	openCheckboxes := strings.Count(body, "- [ ]")
	hasChecklist := openCheckboxes > 0 || strings.Contains(body, "- [x]")
	hasManyRequirements := openCheckboxes > 3

	switch {
	case wordCount > 500 || (hasCode && hasManyRequirements):
		return ComplexityHigh
	case wordCount > 200 || hasCode || hasChecklist:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// Plan analyzes t and appends a "## Execution Plan" section, unless one
// already exists (idempotent re-entry). Returns the generated Plan even
// when the section already existed, so callers can still read the skill
// hint without re-parsing markdown.
func (p *Planner) Plan(t *store.Task) (Plan, error) {
	category := p.Classify(t)
	tmpl := templates[category]
	plan := Plan{
		Category:     category,
		Skill:        skillMap[category],
		Complexity:   EstimateComplexity(t.Body),
		Duration:     tmpl.duration,
		Steps:        tmpl.steps,
		Deliverables: tmpl.deliverables,
	}

	if t.HasSection(sectionHeading) {
		p.logger.Info("execution plan already present, skipping", map[string]interface{}{"task": t.Title()})
		return plan, nil
	}

	t.Header.Set("skill", plan.Skill)
	t.Header.Set("status", string(core.StatusPlanned))

	if err := store.AppendSection(t, sectionHeading, renderPlan(t.Title(), plan)); err != nil {
		return plan, fmt.Errorf("planner: append execution plan: %w", err)
	}
	if err := store.Write(t); err != nil {
		return plan, fmt.Errorf("planner: persist header: %w", err)
	}

	p.logger.Info("execution plan generated", map[string]interface{}{
		"task":       t.Title(),
		"category":   string(category),
		"skill":      plan.Skill,
		"complexity": string(plan.Complexity),
	})

	return plan, nil
}

func renderPlan(title string, plan Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Generated:** %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Objective:** Complete task: %s\n\n", title)
	fmt.Fprintf(&b, "**Skill Required:** %s\n\n", plan.Skill)
	fmt.Fprintf(&b, "**Estimated Duration:** %s\n\n", plan.Duration)
	fmt.Fprintf(&b, "**Complexity:** %s\n\n", plan.Complexity)
	b.WriteString("### Steps\n\n")
	for i, step := range plan.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	b.WriteString("\n### Deliverables\n\n")
	for _, d := range plan.Deliverables {
		fmt.Fprintf(&b, "- [ ] %s\n", d)
	}
	return strings.TrimRight(b.String(), "\n")
}

func anyContains(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
