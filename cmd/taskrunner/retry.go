package main

import (
	"context"

	"github.com/itsneelabh/taskforge/core"
	"github.com/itsneelabh/taskforge/resilience"
)

// resilienceRetryDecider adapts a resilience.RetryPolicy into the
// manager.RetryDecider interface: the Manager only ever needs a
// yes/no for "one more attempt at this layer", so the adapter compares
// the attempt number against the policy's MaxAttempts rather than
// running the policy's own backoff (multi-step retrying with delay
// belongs to the Autonomy Loop).
type resilienceRetryDecider struct {
	policy resilience.RetryPolicy
}

func newResilienceRetryDecider(policy resilience.RetryPolicy) *resilienceRetryDecider {
	return &resilienceRetryDecider{policy: policy}
}

func (d *resilienceRetryDecider) ShouldRetry(_ context.Context, _ string, attempt int, err error) bool {
	if err == nil {
		return false
	}
	if !core.IsRetryable(err) {
		return false
	}
	return attempt < d.policy.MaxAttempts
}
