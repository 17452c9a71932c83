package event

import "time"

// Grounded on the teacher's internal/domain/event.NewFromCreateRequest:
// one constructor per event shape rather than a single overloaded New.

func NewStarted(id, correlationID, jobType string) Event {
	return newEnvelope(id, correlationID, jobType, KindStarted)
}

func NewProgress(id, correlationID, jobType string, value float64, message string) Event {
	e := newEnvelope(id, correlationID, jobType, KindProgress)
	e.ProgressValue = value
	e.ProgressMessage = message
	return e
}

func NewSuccess(id, correlationID, jobType string, data any, source Source) Event {
	e := newEnvelope(id, correlationID, jobType, KindSuccess)
	e.SuccessData = data
	e.SuccessSource = source
	return e
}

func NewFailure(id, correlationID, jobType string, err error, stack string, wasRetried bool) Event {
	e := newEnvelope(id, correlationID, jobType, KindFailure)
	e.FailureError = err
	e.FailureStack = stack
	e.FailureRetried = wasRetried
	return e
}

func NewCancelled(id, correlationID, jobType string, reason string) Event {
	e := newEnvelope(id, correlationID, jobType, KindCancelled)
	e.CancelReason = reason
	return e
}

func NewTimeout(id, correlationID, jobType string, d time.Duration) Event {
	e := newEnvelope(id, correlationID, jobType, KindTimeout)
	e.TimeoutDuration = d
	return e
}

func NewRetrying(id, correlationID, jobType string, attempt, max int) Event {
	e := newEnvelope(id, correlationID, jobType, KindRetrying)
	e.RetryAttempt = attempt
	e.RetryMax = max
	return e
}

func NewDomain(id, correlationID, jobType string, payload DomainEvent) Event {
	e := newEnvelope(id, correlationID, jobType, KindDomain)
	e.Domain = payload
	return e
}

func NewNetworkSyncFailure(id, correlationID, jobType string, reason string) Event {
	e := newEnvelope(id, correlationID, jobType, KindNetworkSyncFailure)
	e.SyncFailureReason = reason
	return e
}
