package resilience

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// QueuedJob is a failure-queue entry persisted to disk as
// queue_<agent>_<timestamp>.json when an operation exhausts both its
// retries and its fallback.
type QueuedJob struct {
	ID       string          `json:"id"`
	AgentID  string          `json:"agent_id"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
	QueuedAt time.Time       `json:"queued_at"`
	LastErr  string          `json:"last_error"`
}

// FailureQueue persists jobs that exhausted retry and fallback,
// re-attempts them up to a bounded number of times, and moves
// exhausted jobs to a dead-letter directory.
type FailureQueue struct {
	dir         string
	deadLetter  string
	maxAttempts int
}

// NewFailureQueue returns a queue rooted at dir, with a dead_letter
// subdirectory for exhausted jobs.
func NewFailureQueue(dir string, maxAttempts int) *FailureQueue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &FailureQueue{dir: dir, deadLetter: filepath.Join(dir, "dead_letter"), maxAttempts: maxAttempts}
}

// Enqueue persists a new job for agentID with the given payload.
func (q *FailureQueue) Enqueue(agentID string, payload interface{}, lastErr error) (*QueuedJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("resilience: marshal queued payload: %w", err)
	}
	job := &QueuedJob{
		ID:       uuid.NewString(),
		AgentID:  agentID,
		Payload:  raw,
		Attempts: 0,
		QueuedAt: time.Now().UTC(),
	}
	if lastErr != nil {
		job.LastErr = lastErr.Error()
	}
	if err := q.persist(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *FailureQueue) path(job *QueuedJob) string {
	return filepath.Join(q.dir, fmt.Sprintf("queue_%s_%d.json", job.AgentID, job.QueuedAt.UnixNano()))
}

func (q *FailureQueue) persist(job *QueuedJob) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("resilience: marshal queued job: %w", err)
	}
	return writeFileAtomic(q.path(job), data, 0o644)
}

// Retry re-attempts job via fn. On success the persisted file is
// removed. On failure, attempts is incremented and the job is either
// re-persisted or, once maxAttempts is exhausted, moved to the
// dead-letter directory.
func (q *FailureQueue) Retry(job *QueuedJob, fn func(payload json.RawMessage) error) error {
	err := fn(job.Payload)
	oldPath := q.path(job)
	if err == nil {
		_ = os.Remove(oldPath)
		return nil
	}

	job.Attempts++
	job.LastErr = err.Error()
	_ = os.Remove(oldPath)

	if job.Attempts >= q.maxAttempts {
		return q.deadLetterJob(job)
	}
	return q.persist(job)
}

func (q *FailureQueue) deadLetterJob(job *QueuedJob) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("resilience: marshal dead letter job: %w", err)
	}
	path := filepath.Join(q.deadLetter, fmt.Sprintf("queue_%s_%d.json", job.AgentID, job.QueuedAt.UnixNano()))
	return writeFileAtomic(path, data, 0o644)
}
