package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/taskforge/core"
)

func TestRetryPolicyDelayFormulas(t *testing.T) {
	fixed := RetryPolicy{Backoff: BackoffFixed, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, fixed.Delay(3))

	linear := RetryPolicy{Backoff: BackoffLinear, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 300*time.Millisecond, linear.Delay(3))
	assert.Equal(t, time.Second, linear.Delay(20))

	exp := RetryPolicy{Backoff: BackoffExponential, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 400*time.Millisecond, exp.Delay(3))
	assert.Equal(t, time.Second, exp.Delay(20))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: time.Second}

	err := Retry(context.Background(), policy, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, Backoff: BackoffFixed, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: time.Second}
	var failures []int

	err := Retry(context.Background(), policy, func(context.Context) error {
		return errors.New("boom")
	}, func(attempt int, _ error) { failures = append(failures, attempt) })

	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, []int{1, 2}, failures)
}

func TestHeartbeatMonitorDetectsMiss(t *testing.T) {
	var missed []string
	m := NewHeartbeatMonitor(func(agentID string) { missed = append(missed, agentID) })
	m.Register("writer", core.AgentPriorityCritical)

	past := time.Now().Add(-time.Minute)
	m.Beat("writer")
	health, ok := m.Health("writer")
	require.True(t, ok)
	health.LastHeartbeat = past
	m.mu.Lock()
	m.agents["writer"].LastHeartbeat = past
	m.mu.Unlock()

	m.Sweep(time.Now())
	assert.Contains(t, missed, "writer")
}

func TestHeartbeatMonitorSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system_state.json")

	m := NewHeartbeatMonitor(nil)
	m.Register("writer", core.AgentPriorityCritical)
	m.Beat("writer")
	require.NoError(t, m.Save(path))

	restored := NewHeartbeatMonitor(nil)
	require.NoError(t, restored.Load(path))

	health, ok := restored.Health("writer")
	require.True(t, ok)
	assert.Equal(t, "running", health.Status)
	assert.Equal(t, core.AgentPriorityCritical, health.Priority)
}

func TestHeartbeatMonitorLoadMissingFileIsNoOp(t *testing.T) {
	m := NewHeartbeatMonitor(nil)
	require.NoError(t, m.Load(filepath.Join(t.TempDir(), "does-not-exist.json")))
	_, ok := m.Health("anything")
	assert.False(t, ok)
}

func TestHealthGraderEscalatesOnCriticalFailure(t *testing.T) {
	g := NewHealthGrader("")
	assert.Equal(t, GradeHealthy, g.Current())

	g.RecordFailure(core.AgentPriorityLow)
	assert.Equal(t, GradeDegraded1, g.Current())

	g.RecordFailure(core.AgentPriorityCritical)
	assert.Equal(t, GradeDegraded3, g.Current())

	g.RecordRecovery(core.AgentPriorityCritical)
	g.RecordRecovery(core.AgentPriorityLow)
	assert.Equal(t, GradeRecovery, g.Current())
}

func TestFailureQueueEnqueueAndDeadLetter(t *testing.T) {
	dir := t.TempDir()
	q := NewFailureQueue(dir, 2)

	job, err := q.Enqueue("emailer", map[string]string{"to": "a@example.com"}, errors.New("smtp down"))
	require.NoError(t, err)
	matches, err := filepath.Glob(filepath.Join(dir, "queue_emailer_*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	err = q.Retry(job, func(payload json.RawMessage) error { return errors.New("still down") })
	require.NoError(t, err) // Retry itself only errors on I/O failure, not job failure
	assert.Equal(t, 1, job.Attempts)

	err = q.Retry(job, func(payload json.RawMessage) error { return errors.New("still down") })
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)
}

func TestControllerExecuteFallsBackToFallback(t *testing.T) {
	fallbacks := NewFallbackRegistry()
	fallbacks.Register(FallbackEntry{
		Primary: "emailer",
		Fallback: func(context.Context) (interface{}, error) {
			return "queued for later", nil
		},
	})

	c := New(NewHeartbeatMonitor(nil), fallbacks)

	out, err := c.Execute(context.Background(), "emailer", core.AgentPriorityNormal, func(context.Context) (interface{}, error) {
		return nil, errors.New("smtp down")
	})
	require.NoError(t, err)
	assert.Equal(t, "queued for later", out)
}

func TestControllerExecuteSucceeds(t *testing.T) {
	c := New(nil, nil)
	out, err := c.Execute(context.Background(), "writer", core.AgentPriorityLow, func(context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestRunGuardedRecoversPanic(t *testing.T) {
	c := New(nil, nil)
	err := c.RunGuarded(context.Background(), "poller", func(context.Context) error {
		panic("boom")
	})
	assert.Error(t, err)
}
