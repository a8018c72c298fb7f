// Package audit implements the Audit Stream (spec §4.10): an
// append-only, category-partitioned JSON-line event log with batched
// writes, daily summaries, and age-based retention pruning.
package audit

import "time"

// Category is the closed set of audit event categories.
type Category string

const (
	CategoryTaskLifecycle Category = "task_lifecycle"
	CategoryAgentDecision Category = "agent_decision"
	CategoryMCPCall       Category = "mcp_call"
	CategoryFailure       Category = "failure"
	CategoryRetry         Category = "retry"
	CategorySystem        Category = "system"
)

// Retention declares how long each category's records are kept.
var Retention = map[Category]time.Duration{
	CategoryMCPCall:       30 * 24 * time.Hour,
	CategoryTaskLifecycle: 90 * 24 * time.Hour,
	CategoryAgentDecision: 90 * 24 * time.Hour,
	CategoryRetry:         90 * 24 * time.Hour,
	CategoryFailure:       180 * 24 * time.Hour,
	CategorySystem:        365 * 24 * time.Hour,
}

// Event is the data model's immutable Audit Event record.
type Event struct {
	Timestamp     time.Time              `json:"timestamp"`
	Category      Category               `json:"category"`
	EventName     string                 `json:"event_name"`
	AgentID       string                 `json:"agent_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// categoryOf resolves a category from an event's loosely-typed details
// map (the shape every caller in this repo emits via an AuditFunc),
// defaulting to "system" for an absent or unrecognized value.
func categoryOf(details map[string]interface{}) Category {
	raw, _ := details["category"].(string)
	switch Category(raw) {
	case CategoryTaskLifecycle, CategoryAgentDecision, CategoryMCPCall, CategoryFailure, CategoryRetry, CategorySystem:
		return Category(raw)
	default:
		return CategorySystem
	}
}

func eventNameOf(details map[string]interface{}) string {
	if name, ok := details["event"].(string); ok && name != "" {
		return name
	}
	if decision, ok := details["decision"].(string); ok && decision != "" {
		return decision
	}
	return "event"
}

func stringField(details map[string]interface{}, key string) string {
	v, _ := details[key].(string)
	return v
}
