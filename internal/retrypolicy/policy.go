// Package retrypolicy computes retry eligibility and backoff delays for
// the BaseExecutor engine, grounded in the teacher's
// internal/queue/worker.ExponentialBackoff and the dead-letter bookkeeping
// in internal/queue/worker.Worker.handleFailure.
package retrypolicy

import (
	"math"
	"math/rand"
	"time"
)

// ShouldRetry optionally narrows which errors are retryable. A nil
// ShouldRetry retries every error (subject to MaxRetries), matching the
// spec's `can_retry(e, attempt) = attempt < max_retries ∧ (shouldRetry?(e) ∨ true)`.
type ShouldRetry func(err error) bool

// Policy mirrors spec §4.2's retry semantics.
type Policy struct {
	// MaxRetries is the number of retries allowed after the first attempt;
	// attempts are zero-indexed, so MaxRetries=0 means "can_retry" is
	// false on the first failure.
	MaxRetries int
	// BaseDelay is the fixed delay when Exponential is false, and the
	// multiplicand when Exponential is true.
	BaseDelay time.Duration
	// MaxDelay caps the computed exponential delay. Zero means no cap.
	MaxDelay time.Duration
	// Exponential switches Delay from constant BaseDelay to
	// BaseDelay * 2^attempt (capped at MaxDelay).
	Exponential bool
	// Jitter adds up to this much random delay on top of the computed
	// value, to avoid thundering-herd retries across many jobs.
	Jitter time.Duration
	// ShouldRetry narrows retryable errors; nil retries everything.
	ShouldRetry ShouldRetry
}

// Default returns a conservative policy: three retries, exponential
// backoff starting at 250ms capped at 30s, matching the order of
// magnitude the teacher uses for job backoff (2s base, 5m cap) scaled
// down for an in-process UI runtime where jobs are expected to be fast.
func Default() Policy {
	return Policy{
		MaxRetries:  3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Exponential: true,
		Jitter:      100 * time.Millisecond,
	}
}

// CanRetry reports whether another attempt is permitted after a failure
// at the given zero-indexed attempt number. Cancellation and timeout are
// never retried by the engine regardless of what CanRetry returns; the
// engine only consults this for ProcessFailure outcomes.
func (p Policy) CanRetry(err error, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	if p.ShouldRetry == nil {
		return true
	}
	return p.ShouldRetry(err)
}

// Delay computes the backoff before the next attempt, per spec §4.2:
// delay(attempt) = base_delay if not exponential, else
// min(base_delay * 2^attempt, max_delay).
func (p Policy) Delay(attempt int) time.Duration {
	var d time.Duration
	if !p.Exponential {
		d = p.BaseDelay
	} else {
		multiple := math.Pow(2, float64(attempt))
		d = time.Duration(float64(p.BaseDelay) * multiple)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter) + 1))
	}
	return d
}

// None returns a policy that never retries: CanRetry is always false on
// the first failure, matching the "retry_policy(max_retries=0)" boundary
// case from spec §8.
func None() Policy {
	return Policy{MaxRetries: 0}
}
