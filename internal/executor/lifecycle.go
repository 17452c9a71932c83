package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/geocoder89/jobrt/internal/dispatcher"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/rterr"
)

// outcome classifies how one process attempt (or the whole retry loop)
// ended, per spec §4.2's state machine.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeCancelled
	outcomeTimedOut
)

type attemptResult struct {
	value   any
	err     error
	outcome outcome
}

// runAttempt runs work exactly once under the job's timeout and
// cancellation token, racing them against completion. The first
// terminal signal observed wins; the loser is abandoned, per spec §5's
// "best-effort abandon, first terminal transition wins".
func runAttempt(ctx context.Context, j job.Job, work dispatcher.Work) attemptResult {
	var timeoutCh <-chan time.Time
	if to := j.Timeout(); to > 0 {
		timer := time.NewTimer(to)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	tok := j.CancellationToken()
	var cancelCh <-chan struct{}
	if tok != nil {
		if tok.IsCancelled() {
			return attemptResult{err: &rterr.Cancelled{Reason: tok.Reason()}, outcome: outcomeCancelled}
		}
		cancelCh = tok.Done()
	}

	type done struct {
		val any
		err error
	}
	doneCh := make(chan done, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				doneCh <- done{err: fmt.Errorf("process panicked: %v\n%s", r, debug.Stack())}
			}
		}()
		v, err := work(ctx, j)
		doneCh <- done{val: v, err: err}
	}()

	select {
	case d := <-doneCh:
		if d.err != nil {
			return attemptResult{err: d.err, outcome: outcomeFailure}
		}
		return attemptResult{value: d.val, outcome: outcomeSuccess}
	case <-timeoutCh:
		return attemptResult{err: &rterr.TimedOut{Duration: j.Timeout()}, outcome: outcomeTimedOut}
	case <-cancelCh:
		reason := ""
		if tok != nil {
			reason = tok.Reason()
		}
		return attemptResult{err: &rterr.Cancelled{Reason: reason}, outcome: outcomeCancelled}
	}
}

// runWithRetry drives the Failure -> Retrying -> Processing loop from
// spec §4.2. onRetry is invoked between attempts (to emit JobRetrying);
// it is not called for the final, non-retried failure.
func runWithRetry(ctx context.Context, j job.Job, work dispatcher.Work, onRetry func(attempt, max int)) (attemptResult, int) {
	policy := j.RetryPolicy()
	attempt := 0

	for {
		res := runAttempt(ctx, j, work)

		if res.outcome != outcomeFailure {
			return res, attempt
		}
		if policy == nil || !policy.CanRetry(res.err, attempt) {
			return res, attempt
		}

		max := policy.MaxRetries
		if onRetry != nil {
			onRetry(attempt, max)
		}
		delay := policy.Delay(attempt)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		attempt++
	}
}
