// Package resilience implements the Resilience Controller (spec §4.7):
// retry with backoff, system health grading (there is no circuit
// breaker), a heartbeat monitor, an execute-with-resilience wrapper, a fallback
// registry, and an on-disk failure queue. Core principle: the runtime
// must never crash out from under a caller.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/itsneelabh/taskforge/core"
)

// Backoff is the closed set of delay curves a RetryPolicy may declare.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy is the data model's {max_attempts, backoff, base_delay,
// max_delay, jitter, timeout} record.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the computed delay, e.g. 0.1 = ±10%
	Timeout     time.Duration
}

// attemptsByPriority declares max_attempts(priority), grounded on the teacher's
// DefaultRetryConfig generalized across agent priority.
var attemptsByPriority = map[core.AgentPriority]int{
	core.AgentPriorityCritical: 5,
	core.AgentPriorityHigh:     4,
	core.AgentPriorityNormal:   3,
	core.AgentPriorityLow:      2,
}

// DefaultRetryPolicy returns the declared policy for an agent priority.
func DefaultRetryPolicy(p core.AgentPriority) RetryPolicy {
	attempts, ok := attemptsByPriority[p]
	if !ok {
		attempts = attemptsByPriority[core.AgentPriorityNormal]
	}
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff:     BackoffExponential,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.1,
		Timeout:     30 * time.Second,
	}
}

// Delay computes the backoff for attempt n (1-indexed), per spec §3's
// exact formulas.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	var d time.Duration
	switch p.Backoff {
	case BackoffFixed:
		d = p.BaseDelay
	case BackoffLinear:
		d = time.Duration(int64(p.BaseDelay) * int64(attempt))
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	default: // exponential
		d = time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration(spread * (2*rand.Float64() - 1))
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Retry runs fn up to p.MaxAttempts times, each bounded by p.Timeout,
// sleeping the computed backoff between attempts. onAttemptFailure, if
// non-nil, is called after each failed attempt (used by
// Controller.Execute to record failures against an agent).
func Retry(ctx context.Context, p RetryPolicy, fn func(context.Context) error, onAttemptFailure func(attempt int, err error)) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		if attemptCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %v", core.ErrOperationTimeout, err)
		}
		lastErr = err
		if onAttemptFailure != nil {
			onAttemptFailure(attempt, err)
		}

		if attempt == p.MaxAttempts {
			break
		}
		delay := p.Delay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: %v", core.ErrMaxRetriesExceeded, lastErr)
}
