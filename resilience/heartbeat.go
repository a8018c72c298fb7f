package resilience

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/itsneelabh/taskforge/core"
)

// heartbeatThresholds maps an agent priority to the miss threshold τ(p).
var heartbeatThresholds = map[core.AgentPriority]time.Duration{
	core.AgentPriorityCritical: 30 * time.Second,
	core.AgentPriorityHigh:     60 * time.Second,
	core.AgentPriorityNormal:   120 * time.Second,
	core.AgentPriorityLow:      300 * time.Second,
}

// AgentHealth is the data model's Agent Health Record.
type AgentHealth struct {
	AgentID             string             `json:"agent_id"`
	Status              string             `json:"status"` // running, stopped, failed, unknown
	LastHeartbeat       time.Time          `json:"last_heartbeat"`
	LastError           string             `json:"last_error,omitempty"`
	ErrorCount          int                `json:"error_count"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	LastSuccess         time.Time          `json:"last_success"`
	Priority            core.AgentPriority `json:"priority"`
}

// HeartbeatMonitor tracks per-agent liveness and records a failure
// whenever a registered agent's heartbeat is older than its priority's
// threshold.
type HeartbeatMonitor struct {
	mu     sync.Mutex
	agents map[string]*AgentHealth
	onMiss func(agentID string)
}

// NewHeartbeatMonitor returns an empty monitor. onMiss, if non-nil, is
// invoked (outside the lock) whenever a registered agent's heartbeat
// ages past its threshold.
func NewHeartbeatMonitor(onMiss func(agentID string)) *HeartbeatMonitor {
	return &HeartbeatMonitor{agents: make(map[string]*AgentHealth), onMiss: onMiss}
}

// Register adds or updates an agent's declared priority.
func (m *HeartbeatMonitor) Register(agentID string, priority core.AgentPriority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.agents[agentID]; ok {
		h.Priority = priority
		return
	}
	m.agents[agentID] = &AgentHealth{AgentID: agentID, Status: "unknown", Priority: priority}
}

// Beat records a heartbeat timestamp for agentID.
func (m *HeartbeatMonitor) Beat(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.agents[agentID]
	if !ok {
		h = &AgentHealth{AgentID: agentID, Priority: core.AgentPriorityNormal}
		m.agents[agentID] = h
	}
	h.LastHeartbeat = time.Now()
	h.LastSuccess = h.LastHeartbeat
	h.Status = "running"
	h.ConsecutiveFailures = 0
}

// RecordFailure records an operational failure against an agent,
// independent of heartbeat misses (called by Controller.Execute).
func (m *HeartbeatMonitor) RecordFailure(agentID, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.agents[agentID]
	if !ok {
		h = &AgentHealth{AgentID: agentID, Priority: core.AgentPriorityNormal}
		m.agents[agentID] = h
	}
	h.LastError = errMsg
	h.ErrorCount++
	h.ConsecutiveFailures++
	h.Status = "failed"
}

// Sweep checks every registered agent's heartbeat age against its
// threshold, records a miss (via onMiss) for any agent past it, and
// returns a snapshot of current health records.
func (m *HeartbeatMonitor) Sweep(now time.Time) []AgentHealth {
	m.mu.Lock()
	var missed []string
	snapshot := make([]AgentHealth, 0, len(m.agents))
	for id, h := range m.agents {
		threshold, ok := heartbeatThresholds[h.Priority]
		if !ok {
			threshold = heartbeatThresholds[core.AgentPriorityNormal]
		}
		if !h.LastHeartbeat.IsZero() && now.Sub(h.LastHeartbeat) > threshold {
			h.Status = "failed"
			h.ConsecutiveFailures++
			missed = append(missed, id)
		}
		snapshot = append(snapshot, *h)
	}
	m.mu.Unlock()

	if m.onMiss != nil {
		for _, id := range missed {
			m.onMiss(id)
		}
	}
	return snapshot
}

// Health returns a snapshot of a single agent's record, if known.
func (m *HeartbeatMonitor) Health(agentID string) (AgentHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.agents[agentID]
	if !ok {
		return AgentHealth{}, false
	}
	return *h, true
}

// Save persists the current Agent Health Record snapshot to path via
// write-to-temp-then-rename, per spec's resilience-state persistence
// requirement (the canonical `Logs/resilience/system_state.json`,
// mirroring autonomy.CheckpointStore's Save/Load pattern so agent
// health survives a restart instead of resetting to "unknown").
func (m *HeartbeatMonitor) Save(path string) error {
	m.mu.Lock()
	snapshot := make(map[string]AgentHealth, len(m.agents))
	for id, h := range m.agents {
		snapshot[id] = *h
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("resilience: marshal agent health state: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}

// Load restores Agent Health Records from path, merging into any
// already-registered agents. A missing file is not an error (first
// run on a fresh root).
func (m *HeartbeatMonitor) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resilience: read agent health state: %w", err)
	}
	var snapshot map[string]AgentHealth
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("resilience: unmarshal agent health state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range snapshot {
		restored := h
		m.agents[id] = &restored
	}
	return nil
}
