package executor

import (
	"errors"
	"runtime/debug"

	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
	"github.com/geocoder89/jobrt/internal/rterr"
)

var errOfflineQueueUnconfigured = errors.New("offline queue not configured")

// tryCacheHit implements the cache-read half of spec §4.2's cache+SWR
// step. For a miss, or a job with no cache key, or no EventJob
// capability, it is a no-op and reports false.
func (e *Engine) tryCacheHit(j job.Job, handle *jobhandle.Handle[any]) bool {
	if e.cache == nil || !j.HasCache() {
		return false
	}
	ej, ok := j.(job.EventJob)
	if !ok {
		return false
	}

	cached, hit := e.cache.Read(j.CacheKey())
	if !hit {
		return false
	}

	domainEvt := ej.MakeEvent(cached)
	e.publish(event.NewDomain(j.ID(), j.ID(), j.TypeName(), domainEvt))
	handle.Complete(cached, event.SourceCached)
	return true
}

// completeSuccess implements the Processing -> Success transition:
// build and publish the terminal event (domain event for EventJob,
// framework JobSuccess otherwise), write through to cache if a cache
// key is set, and complete the handle unless a cache hit already did
// so (the SWR revalidate path).
func (e *Engine) completeSuccess(j job.Job, handle *jobhandle.Handle[any], value any, alreadyCompletedByCache bool) {
	source := event.SourceFresh

	if ej, ok := j.(job.EventJob); ok {
		e.publish(event.NewDomain(j.ID(), j.ID(), j.TypeName(), ej.MakeEvent(value)))
	} else {
		e.publish(event.NewSuccess(j.ID(), j.ID(), j.TypeName(), value, source))
	}

	if e.cache != nil && j.HasCache() {
		if err := e.cache.Write(j.CacheKey(), value, j.CacheTTL()); err != nil {
			e.logger.Warn("cache write failed", "job_type", j.TypeName(), "job_id", j.ID(), "error", err)
		}
	}

	if !alreadyCompletedByCache {
		handle.Complete(value, source)
	}

	if e.jobMetrics != nil {
		e.jobMetrics.IncSucceeded()
	}
	invokeObserver(func() { e.observer.OnJobSuccess(j, value, source) })
}

func (e *Engine) completeFailure(j job.Job, handle *jobhandle.Handle[any], cause error, wasRetried bool) {
	stack := string(debug.Stack())
	err := &rterr.ProcessFailure{Cause: cause, Stack: stack, WasRetried: wasRetried}

	e.publish(event.NewFailure(j.ID(), j.ID(), j.TypeName(), cause, stack, wasRetried))
	handle.CompleteError(err)

	if e.jobMetrics != nil {
		e.jobMetrics.IncFailed()
	}
	invokeObserver(func() { e.observer.OnJobError(j, err, stack) })
}

func (e *Engine) completeCancelled(j job.Job, handle *jobhandle.Handle[any], cause error) {
	reason := ""
	if c, ok := cause.(*rterr.Cancelled); ok {
		reason = c.Reason
	}

	e.publish(event.NewCancelled(j.ID(), j.ID(), j.TypeName(), reason))
	handle.CompleteError(cause)

	if e.jobMetrics != nil {
		e.jobMetrics.IncCancelled()
	}
	invokeObserver(func() { e.observer.OnJobError(j, cause, "") })
}

func (e *Engine) completeTimedOut(j job.Job, handle *jobhandle.Handle[any], cause error) {
	e.publish(event.NewTimeout(j.ID(), j.ID(), j.TypeName(), j.Timeout()))
	handle.CompleteError(cause)

	if e.jobMetrics != nil {
		e.jobMetrics.IncTimedOut()
	}
	invokeObserver(func() { e.observer.OnJobError(j, cause, "") })
}

// runOffline implements spec §4.2's NetworkAction interception: hand
// the job to the offline queue instead of running it, and complete the
// handle optimistically if the job offers a placeholder value.
func (e *Engine) runOffline(na job.NetworkAction, handle *jobhandle.Handle[any]) {
	if e.offline == nil {
		// No offline queue configured: treat as a hard failure rather
		// than silently running a NetworkAction while offline.
		err := &rterr.EnqueueRejected{Cause: errOfflineQueueUnconfigured}
		e.publish(event.NewFailure(na.ID(), na.ID(), na.TypeName(), err, "", false))
		handle.CompleteError(err)
		return
	}

	if err := e.offline.Enqueue(na, handle); err != nil {
		wrapped := &rterr.EnqueueRejected{Cause: err}
		e.publish(event.NewFailure(na.ID(), na.ID(), na.TypeName(), wrapped, "", false))
		handle.CompleteError(wrapped)
		return
	}

	if value, ok := na.OptimisticValue(); ok {
		handle.Complete(value, event.SourceOptimistic)
	}
	// Otherwise the handle stays open: Manager tracks it against na's
	// job id and resolves it itself once Drain completes this entry.
}
