// Package approval implements the Approval Controller: it diverts
// sensitive tasks to a companion artifact in the approval directory,
// watches that artifact for a human decision, and re-admits or
// terminates the task accordingly.
package approval

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/itsneelabh/taskforge/core"
	"github.com/itsneelabh/taskforge/store"
)

// RiskLevel is the closed set of risk levels an approval artifact can
// carry.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// SensitivityTag is the closed set of sensitive-action categories the
// controller recognizes.
type SensitivityTag string

const (
	TagEmail             SensitivityTag = "email"
	TagSocialPost        SensitivityTag = "social_post"
	TagPayment           SensitivityTag = "payment"
	TagDatabaseChange    SensitivityTag = "database_change"
	TagProductionDeploy  SensitivityTag = "production_deploy"
	TagCredentialAccess  SensitivityTag = "credential_access"
	TagDataExport        SensitivityTag = "data_export"

	// TagPriorityEscalation is used when a task requires approval
	// because of its priority alone (urgent/critical) and no keyword
	// identifies a more specific sensitivity tag.
	TagPriorityEscalation SensitivityTag = "priority_escalation"
)

// riskTable maps a sensitivity tag to its declared risk level, per the
// teacher's risk_levels table.
var riskTable = map[SensitivityTag]RiskLevel{
	TagEmail:            RiskMedium,
	TagSocialPost:       RiskLow,
	TagPayment:          RiskHigh,
	TagDatabaseChange:   RiskHigh,
	TagProductionDeploy: RiskCritical,
	TagCredentialAccess: RiskHigh,
	TagDataExport:       RiskMedium,
	TagPriorityEscalation: RiskMedium,
}

// sensitiveKeywords maps a sensitivity tag to the keywords whose
// presence in a task's content triggers it. Checked in map iteration
// order is not guaranteed in Go, so Detect iterates a fixed slice to
// keep tag detection deterministic when a task matches more than one.
var sensitiveKeywords = map[SensitivityTag][]string{
	TagEmail: {
		"send email", "email blast", "mass email", "newsletter",
		"skill: email", "smtp", "mailchimp",
	},
	TagSocialPost: {
		"linkedin", "twitter", "facebook", "social media",
		"publish post", "post to", "skill: linkedin", "skill: twitter", "skill: social",
	},
	TagPayment: {
		"payment", "pay", "invoice", "transfer", "wire",
		"purchase", "buy", "charge", "refund", "billing",
		"credit card", "bank", "financial",
	},
	TagDatabaseChange: {
		"database", "sql", "migrate", "schema", "drop table",
		"alter table", "delete from", "truncate", "db change",
	},
	TagProductionDeploy: {
		"deploy", "production", "prod", "live site",
		"release", "push to prod", "go live",
	},
	TagCredentialAccess: {
		"api key", "secret", "credential", "password",
		"token", "authentication", "private key",
	},
	TagDataExport: {
		"export data", "download data", "data dump",
		"backup", "extract data", "data export",
	},
}

var tagOrder = []SensitivityTag{
	TagEmail, TagSocialPost, TagPayment, TagDatabaseChange,
	TagProductionDeploy, TagCredentialAccess, TagDataExport,
}

// Detect reports whether t requires approval and, if so, which
// sensitivity tag matched first.
func Detect(t *store.Task) (SensitivityTag, bool) {
	content := strings.ToLower(t.Header.Render() + "\n" + t.Body)
	for _, tag := range tagOrder {
		for _, kw := range sensitiveKeywords[tag] {
			if strings.Contains(content, kw) {
				return tag, true
			}
		}
	}
	return "", false
}

// Decision is the outcome of scanning an approval artifact.
type Decision string

const (
	DecisionPending   Decision = "pending"
	DecisionApproved  Decision = "approved"
	DecisionRejected  Decision = "rejected"
	DecisionNeedsInfo Decision = "needs_info"
)

var (
	reApprovedYes = regexp.MustCompile(`(?i)APPROVED:\s*YES`)
	reApprovedNo  = regexp.MustCompile(`(?i)APPROVED:\s*NO`)
	reRejected    = regexp.MustCompile(`(?i)REJECTED:\s*YES`)
	reNeedsInfo   = regexp.MustCompile(`(?i)NEEDS INFO|NEEDS_MORE_INFO|MORE INFORMATION`)
	reApprovedBy  = regexp.MustCompile(`Approved by:\s*([^\n]+)`)
	reReason      = regexp.MustCompile(`Reason:\s*([^\n]+)`)
)

// ScanResult is what checking an artifact's body for a decision yields.
type ScanResult struct {
	Decision Decision
	Detail   string // approver name on approval, reason on rejection
}

// Scan inspects content (an approval artifact's full text) for the
// decision grammar. First match wins: APPROVED: YES is checked before
// rejection patterns, matching the declared tie-break order.
func Scan(content string) ScanResult {
	if reApprovedYes.MatchString(content) {
		approver := "Unknown"
		if m := reApprovedBy.FindStringSubmatch(content); m != nil {
			approver = strings.TrimSpace(m[1])
		}
		return ScanResult{Decision: DecisionApproved, Detail: approver}
	}
	if reApprovedNo.MatchString(content) || reRejected.MatchString(content) {
		reason := "No reason provided"
		if m := reReason.FindStringSubmatch(content); m != nil {
			reason = strings.TrimSpace(m[1])
		}
		return ScanResult{Decision: DecisionRejected, Detail: reason}
	}
	if reNeedsInfo.MatchString(content) {
		return ScanResult{Decision: DecisionNeedsInfo, Detail: "more information requested"}
	}
	return ScanResult{Decision: DecisionPending}
}

// Controller creates and watches approval artifacts.
type Controller struct {
	logger   core.Logger
	expiry   time.Duration
	logPath  string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger injects a logger; defaults to core.NoOpLogger{}.
func WithLogger(l core.Logger) Option {
	return func(c *Controller) {
		if l == nil {
			return
		}
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			c.logger = cal.WithComponent("approval")
		} else {
			c.logger = l
		}
	}
}

// WithExpiry sets how long an artifact remains pending before it is
// treated as a timeout rejection. Defaults to "end of the day it was
// created", matching the teacher's midnight cutoff.
func WithExpiry(d time.Duration) Option {
	return func(c *Controller) { c.expiry = d }
}

// WithApprovalLog sets the markdown log path for approval/rejection events.
func WithApprovalLog(path string) Option {
	return func(c *Controller) { c.logPath = path }
}

// New creates a Controller.
func New(opts ...Option) *Controller {
	c := &Controller{logger: core.NoOpLogger{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Divert creates a companion approval artifact for t in approvalDir,
// moves t beside it, and returns the artifact's Task. It fails if t
// has already been diverted once this cycle (t.Header carries
// "approval_cycle: 1"), enforcing the single-pending-cycle invariant.
func (c *Controller) Divert(t *store.Task, approvalDir string, tag SensitivityTag) (*store.Task, error) {
	if t.Header.GetDefault("approval_cycle", "") == "1" {
		return nil, fmt.Errorf("approval: %w: task already diverted once this cycle", core.ErrApprovalAlreadyPending)
	}

	risk := riskTable[tag]
	if risk == "" {
		risk = RiskMedium
	}

	now := time.Now().UTC()
	expiry := c.expiry
	if expiry == 0 {
		expiry = endOfDay(now).Sub(now)
	}
	expiresAt := now.Add(expiry)

	artifact := store.NewHeader()
	artifact.Set("title", "Approval Request: "+t.Title())
	artifact.Set("original_task", taskFileName(t))
	artifact.Set("request_type", string(tag))
	artifact.Set("risk_level", string(risk))
	artifact.Set("status", "pending_approval")
	artifact.Set("created", now.Format(time.RFC3339))
	artifact.Set("expires", expiresAt.Format(time.RFC3339))

	artifactTask := &store.Task{
		Header: artifact,
		Body:   renderArtifactBody(t, tag, risk, now, expiresAt),
		Path:   approvalDir + "/approval_" + trimExt(taskFileName(t)) + ".md",
	}
	if err := store.Write(artifactTask); err != nil {
		return nil, fmt.Errorf("approval: write artifact: %w", err)
	}

	t.Header.Set("approval_cycle", "1")
	t.Header.Set("status", string(core.StatusPendingApproval))
	if err := store.Move(t, approvalDir); err != nil {
		return nil, fmt.Errorf("approval: copy task beside artifact: %w", err)
	}

	c.logger.Info("task diverted to approval", map[string]interface{}{
		"task":       t.Title(),
		"tag":        string(tag),
		"risk_level": string(risk),
	})

	return artifactTask, nil
}

// Resolve scans artifact's body for a decision. If expiresAt has
// passed with no decision, it is treated as a rejection with reason
// "timeout".
func Resolve(artifact *store.Task) ScanResult {
	result := Scan(artifact.Body)
	if result.Decision != DecisionPending {
		return result
	}

	expiresStr := artifact.Header.GetDefault("expires", "")
	if expiresStr == "" {
		return result
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresStr)
	if err != nil {
		return result
	}
	if time.Now().UTC().After(expiresAt) {
		return ScanResult{Decision: DecisionRejected, Detail: "timeout"}
	}
	return result
}

// Admit re-admits an approved task: writes approved/approved_by/
// approved_at into its header, moves it back to domainDir, and moves
// the artifact to doneDir.
func (c *Controller) Admit(ctx context.Context, task, artifact *store.Task, approver, domainDir, doneDir string) error {
	task.Header.Set("approved", "true")
	task.Header.Set("approved_by", approver)
	task.Header.Set("approved_at", time.Now().UTC().Format(time.RFC3339))
	task.Header.Delete("approval_cycle")
	task.Header.Set("status", string(core.StatusApproved))

	if err := store.Move(task, domainDir); err != nil {
		return fmt.Errorf("approval: move task back to domain: %w", err)
	}
	if err := store.Write(task); err != nil {
		return fmt.Errorf("approval: persist approval header: %w", err)
	}
	if err := store.Move(artifact, doneDir); err != nil {
		return fmt.Errorf("approval: move artifact to done: %w", err)
	}

	c.appendLog(taskFileName(task), "APPROVED", approver)
	c.logger.Info("task approved", map[string]interface{}{"task": task.Title(), "approver": approver})
	return nil
}

// Reject appends a rejection note to task, moves it and the artifact
// to doneDir.
func (c *Controller) Reject(ctx context.Context, task, artifact *store.Task, reason, doneDir string) error {
	task.Header.Set("status", string(core.StatusFailed))
	note := fmt.Sprintf("**Status:** REJECTED\n**Reason:** %s\n**Date:** %s\n\nThis task was rejected during the approval process and will not be executed.",
		reason, time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err := store.AppendSection(task, "## Rejected", note); err != nil {
		return fmt.Errorf("approval: append rejection note: %w", err)
	}
	if err := store.Move(task, doneDir); err != nil {
		return fmt.Errorf("approval: move rejected task to done: %w", err)
	}
	if err := store.Move(artifact, doneDir); err != nil {
		return fmt.Errorf("approval: move artifact to done: %w", err)
	}

	c.appendLog(taskFileName(task), "REJECTED", reason)
	c.logger.Info("task rejected", map[string]interface{}{"task": task.Title(), "reason": reason})
	return nil
}

func (c *Controller) appendLog(name, decision, detail string) {
	if c.logPath == "" {
		return
	}
	if err := appendApprovalLog(c.logPath, name, decision, detail); err != nil {
		c.logger.Warn("failed to append approval log", map[string]interface{}{"error": err.Error()})
	}
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func taskFileName(t *store.Task) string {
	idx := strings.LastIndexByte(t.Path, '/')
	if idx < 0 {
		return t.Path
	}
	return t.Path[idx+1:]
}

func trimExt(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		return name[:idx]
	}
	return name
}

func renderArtifactBody(t *store.Task, tag SensitivityTag, risk RiskLevel, created, expires time.Time) string {
	title := t.Title()
	desc := t.Body
	if len(desc) > 500 {
		desc = desc[:500] + "..."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Approval Request\n\n**Generated:** %s\n\n", created.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Original Task:** `%s`\n\n", taskFileName(t))
	fmt.Fprintf(&b, "**Action Type:** %s\n\n", humanize(string(tag)))
	fmt.Fprintf(&b, "**Risk Level:** %s\n\n---\n\n", risk)
	b.WriteString("## Approval Required\n\nThis task requires human approval before proceeding because it involves a sensitive action.\n\n---\n\n")
	fmt.Fprintf(&b, "## Task Summary\n\n**Title:** %s\n\n**Priority:** %s\n\n**Description:**\n```\n%s\n```\n\n---\n\n",
		title, t.Header.GetDefault("priority", "standard"), desc)
	b.WriteString("## Approval Instructions\n\nAdd a decision section at the end of this file:\n\n")
	b.WriteString("```\n## Decision\n\nAPPROVED: YES\n\nApproved by: [Your Name]\n```\n\nOr to reject:\n\n")
	b.WriteString("```\n## Decision\n\nAPPROVED: NO\n\nReason: [Reason for rejection]\n```\n\n---\n\n")
	fmt.Fprintf(&b, "## Timeout\n\nThis request expires at %s. If not decided by then, the task is rejected with reason \"timeout\".\n",
		expires.Format("2006-01-02 15:04:05"))
	return b.String()
}

func humanize(s string) string {
	return strings.Title(strings.ReplaceAll(s, "_", " "))
}
