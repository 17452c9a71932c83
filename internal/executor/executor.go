// Package executor implements the BaseExecutor engine from spec §4.2:
// the core lifecycle driver that takes a dispatched Job, runs its
// registered Work under cache/SWR, timeout, cancellation and retry
// semantics, and emits the framework events and Observer callbacks
// that follow from each transition.
//
// Grounded on the teacher's internal/queue/worker.Worker (the
// claim -> process -> mark done/failed/reschedule loop) generalized
// from "poll a database queue" to "run one already-dispatched job",
// with the retry/backoff math moved into internal/retrypolicy and the
// event emission moved into internal/signalbus + internal/event.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/jobrt/internal/cacheprovider"
	"github.com/geocoder89/jobrt/internal/connectivity"
	"github.com/geocoder89/jobrt/internal/dispatcher"
	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
	"github.com/geocoder89/jobrt/internal/observability"
	"github.com/geocoder89/jobrt/internal/rterr"
	"github.com/geocoder89/jobrt/internal/signalbus"
)

// OfflineEnqueuer is the narrow slice of OfflineQueueManager the engine
// needs. Kept as an interface here (rather than importing
// internal/offlinequeue directly) so offlinequeue can depend on
// executor.Engine to actually run drained jobs without an import
// cycle.
type OfflineEnqueuer interface {
	Enqueue(j job.NetworkAction, handle *jobhandle.Handle[any]) error
}

// Engine is the BaseExecutor from spec §4.2. Construct one per process
// (or per scoped test) with the collaborators it needs; all fields are
// optional except the dispatcher registry.
type Engine struct {
	registry     *dispatcher.Registry
	bus          *signalbus.Bus
	cache        cacheprovider.Provider
	connectivity connectivity.Provider
	offline      OfflineEnqueuer
	observer     Observer
	jobMetrics   *observability.JobMetrics
	logger       *slog.Logger
}

type Option func(*Engine)

func WithCache(c cacheprovider.Provider) Option          { return func(e *Engine) { e.cache = c } }
func WithConnectivity(c connectivity.Provider) Option    { return func(e *Engine) { e.connectivity = c } }
func WithOfflineEnqueuer(o OfflineEnqueuer) Option       { return func(e *Engine) { e.offline = o } }
func WithObserver(o Observer) Option                     { return func(e *Engine) { e.observer = o } }
func WithJobMetrics(m *observability.JobMetrics) Option  { return func(e *Engine) { e.jobMetrics = m } }
func WithLogger(l *slog.Logger) Option                   { return func(e *Engine) { e.logger = l } }

func New(registry *dispatcher.Registry, bus *signalbus.Bus, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		bus:      bus,
		observer: NoopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute drives j through its lifecycle and reports the terminal
// outcome on handle. It never returns an error directly: every failure
// mode is surfaced through handle and, except for the offline
// interception path, through a terminal bus event.
func (e *Engine) Execute(ctx context.Context, j job.Job, handle *jobhandle.Handle[any]) {
	start := time.Now()
	if e.jobMetrics != nil {
		defer func() { e.jobMetrics.ObserveDuration(time.Since(start)) }()
	}

	e.publish(event.NewStarted(j.ID(), j.ID(), j.TypeName()))
	if e.jobMetrics != nil {
		e.jobMetrics.IncStarted()
	}
	invokeObserver(func() { e.observer.OnJobStart(j) })

	work, ok := e.registry.Lookup(j)
	if !ok {
		err := &rterr.NoExecutor{JobType: j.TypeName()}
		e.publish(event.NewFailure(j.ID(), j.ID(), j.TypeName(), err, "", false))
		handle.CompleteError(err)
		invokeObserver(func() { e.observer.OnJobError(j, err, "") })
		return
	}

	if na, isNetwork := j.(job.NetworkAction); isNetwork && e.isOffline() {
		e.runOffline(na, handle)
		return
	}

	cacheHit := e.tryCacheHit(j, handle)
	if cacheHit && !j.Revalidate() {
		if e.jobMetrics != nil {
			e.jobMetrics.IncSucceeded()
		}
		return
	}

	procCtx := withReporter(ctx, func(value float64, message string) {
		handle.Emit(Progress{Value: value, Message: message})
		pe := event.NewProgress(j.ID(), j.ID(), j.TypeName(), value, message)
		e.publish(pe)
	})

	res, attempts := runWithRetry(procCtx, j, work, func(attempt, max int) {
		if e.jobMetrics != nil {
			e.jobMetrics.IncRetried()
		}
		e.publish(event.NewRetrying(j.ID(), j.ID(), j.TypeName(), attempt, max))
	})

	switch res.outcome {
	case outcomeSuccess:
		e.completeSuccess(j, handle, res.value, cacheHit)
	case outcomeFailure:
		e.completeFailure(j, handle, res.err, attempts > 0)
	case outcomeCancelled:
		e.completeCancelled(j, handle, res.err)
	case outcomeTimedOut:
		e.completeTimedOut(j, handle, res.err)
	}
}

func (e *Engine) isOffline() bool {
	return e.connectivity != nil && !e.connectivity.IsConnected()
}

func (e *Engine) publish(ev event.Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ev)
	invokeObserver(func() { e.observer.OnEvent(ev) })
}
