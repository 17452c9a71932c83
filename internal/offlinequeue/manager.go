// Package offlinequeue implements the OfflineQueueManager collaborator
// from spec §4.5: durable persistence of NetworkAction jobs dispatched
// while offline, and bounded-concurrency draining once connectivity
// returns.
//
// Grounded on the teacher's internal/queue/worker.Worker loop (claim,
// run, mark done/failed/reschedule) generalized from "one DB-backed
// queue polled forever" to "drain an explicit snapshot of entries on
// trigger", and on golang.org/x/sync/semaphore for the bounded-worker
// drain this runtime adds on top of the teacher's single-goroutine
// worker (spec doesn't mandate a worker count, so this is a supplement
// grounded on the pack's concurrency-limiting idiom rather than the
// teacher, which only ever ran one worker per process).
package offlinequeue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/jobrt/internal/connectivity"
	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/filesafety"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
	"github.com/geocoder89/jobrt/internal/observability"
	"github.com/geocoder89/jobrt/internal/queuestorage"
	"github.com/geocoder89/jobrt/internal/rterr"
	"github.com/geocoder89/jobrt/internal/signalbus"
	"golang.org/x/sync/semaphore"
)

// Decoder reconstructs a NetworkAction job of a given type from its
// serialized payload; the matching counterpart of job.NetworkAction's
// Serialize, registered per job type by the host since the manager has
// no generic way to know how to unmarshal an opaque []byte otherwise.
type Decoder func(payload []byte) (job.NetworkAction, error)

// Runner is the narrow slice of executor.Engine the manager needs to
// actually perform a drained job; kept as an interface to avoid
// offlinequeue importing executor's full surface and to avoid an
// import cycle the other direction, since executor.Engine depends on
// OfflineEnqueuer (implemented by Manager below).
type Runner interface {
	Execute(ctx context.Context, j job.Job, handle *jobhandle.Handle[any])
}

// Manager is the OfflineQueueManager from spec §4.5.
type Manager struct {
	storage      queuestorage.Storage
	runner       Runner
	bus          *signalbus.Bus
	connectivity connectivity.Provider
	fileSafety   filesafety.Delegate
	logger       *slog.Logger
	metrics      *observability.Metrics
	jobMetrics   *observability.JobMetrics

	maxRetries   int
	drainWorkers int

	decoders map[string]Decoder

	draining sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*jobhandle.Handle[any]
}

type Option func(*Manager)

func WithMaxRetries(n int) Option            { return func(m *Manager) { m.maxRetries = n } }
func WithDrainWorkers(n int) Option          { return func(m *Manager) { m.drainWorkers = n } }
func WithFileSafety(d filesafety.Delegate) Option { return func(m *Manager) { m.fileSafety = d } }
func WithLogger(l *slog.Logger) Option       { return func(m *Manager) { m.logger = l } }
func WithMetrics(mx *observability.Metrics) Option { return func(m *Manager) { m.metrics = mx } }
func WithJobMetrics(jm *observability.JobMetrics) Option { return func(m *Manager) { m.jobMetrics = jm } }

// New builds a Manager. maxRetries defaults to 5 and drainWorkers to 4
// per spec §6's documented defaults and this runtime's bounded-drain
// supplement, respectively.
func New(storage queuestorage.Storage, runner Runner, bus *signalbus.Bus, conn connectivity.Provider, opts ...Option) *Manager {
	m := &Manager{
		storage:      storage,
		runner:       runner,
		bus:          bus,
		connectivity: conn,
		maxRetries:   5,
		drainWorkers: 4,
		decoders:     make(map[string]Decoder),
		pending:      make(map[string]*jobhandle.Handle[any]),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if conn != nil {
		conn.OnChange(func(connected bool) {
			if connected {
				go m.Drain(context.Background())
			}
		})
	}

	return m
}

// RegisterDecoder binds jobType to the function that reconstructs it
// from serialized bytes, used by Drain to turn a persisted Entry back
// into a job.NetworkAction.
func (m *Manager) RegisterDecoder(jobType string, dec Decoder) {
	m.decoders[jobType] = dec
}

// Enqueue persists na with status=pending, retry_count=0, implementing
// the interception half of spec §4.5. Any ephemeral file references the
// job exposes (via an optional FileReferences() []string method) are
// first copied into the FileSafetyDelegate's controlled directory; the
// persisted payload still names the original paths.
//
// handle is the caller's originating JobHandle. When na exposes no
// optimistic value, the engine leaves handle open; Enqueue tracks it
// against na's job id so a later successful Drain (or, if na is
// poisoned, a terminal failure) can resolve it, per spec §4.2/§4.5's
// "completes when the queue drains successfully" requirement. handle
// may be nil for callers with no handle to resolve.
func (m *Manager) Enqueue(na job.NetworkAction, handle *jobhandle.Handle[any]) error {
	payload, err := na.Serialize()
	if err != nil {
		return &rterr.QueueIO{Op: "serialize", Cause: err}
	}

	if refs, ok := na.(interface{ FileReferences() []string }); ok && m.fileSafety != nil {
		paths := refs.FileReferences()
		if len(paths) > 0 {
			// Key the copies by job id when the delegate supports it, so
			// the Cleanup(jobID) calls made on success or poisoning find them.
			var err error
			if keyed, ok := m.fileSafety.(interface {
				SecureForJob(jobID string, refs []string) (map[string]string, error)
			}); ok {
				_, err = keyed.SecureForJob(na.ID(), paths)
			} else {
				_, err = m.fileSafety.Secure(paths)
			}
			if err != nil {
				return &rterr.QueueIO{Op: "secure_files", Cause: err}
			}
		}
	}

	entry := queuestorage.Entry{
		JobID:      na.ID(),
		JobType:    na.TypeName(),
		Payload:    payload,
		RetryCount: 0,
		CreatedAt:  time.Now(),
		Status:     queuestorage.StatusPending,
	}
	if err := m.storage.Save(entry); err != nil {
		return &rterr.QueueIO{Op: "save", Cause: err}
	}

	if handle != nil {
		m.pendingMu.Lock()
		m.pending[na.ID()] = handle
		m.pendingMu.Unlock()
	}

	m.observeDepth()
	return nil
}

// resolvePending completes the JobHandle tracked against jobID, if any,
// with either a successful (value, source) pair or a terminal error.
// A no-op if no handle was registered (e.g. Enqueue was called with a
// nil handle) or if Drain is replaying an entry whose handle already
// resolved optimistically.
func (m *Manager) resolvePending(jobID string, value any, source event.Source, cause error) {
	m.pendingMu.Lock()
	handle, ok := m.pending[jobID]
	if ok {
		delete(m.pending, jobID)
	}
	m.pendingMu.Unlock()

	if !ok {
		return
	}
	if cause != nil {
		handle.CompleteError(cause)
		return
	}
	handle.Complete(value, source)
}

// Drain runs one full pass over pending entries in insertion order,
// per spec §4.5. Only one Drain runs at a time; a concurrent call
// returns immediately.
func (m *Manager) Drain(ctx context.Context) {
	if !m.draining.TryLock() {
		return
	}
	defer m.draining.Unlock()

	entries, err := m.storage.GetAll()
	if err != nil {
		m.logger.Error("offline queue: failed to list entries", "error", err)
		return
	}

	sem := semaphore.NewWeighted(int64(m.drainWorkers))
	var wg sync.WaitGroup

	for _, e := range entries {
		if e.Status != queuestorage.StatusPending {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(entry queuestorage.Entry) {
			defer sem.Release(1)
			defer wg.Done()
			m.drainOne(ctx, entry)
		}(e)
	}

	wg.Wait()
	m.observeDepth()
}

func (m *Manager) drainOne(ctx context.Context, e queuestorage.Entry) {
	processing := queuestorage.StatusProcessing
	_ = m.storage.Update(e.JobID, queuestorage.Patch{Status: &processing})

	dec, ok := m.decoders[e.JobType]
	if !ok {
		m.logger.Warn("offline queue: no decoder registered", "job_type", e.JobType)
		m.markFailedOrPoisoned(e, errors.New("no decoder registered for job type "+e.JobType))
		return
	}

	na, err := dec(e.Payload)
	if err != nil {
		m.markFailedOrPoisoned(e, err)
		return
	}

	handle := jobhandle.New[any]()
	m.runner.Execute(ctx, na, handle)
	val, source, runErr := handle.Await()

	if runErr != nil {
		m.markFailedOrPoisoned(e, runErr)
		return
	}

	if err := m.storage.Remove(e.JobID); err != nil {
		m.logger.Error("offline queue: failed to remove drained entry", "job_id", e.JobID, "error", err)
	}
	if m.fileSafety != nil {
		_ = m.fileSafety.Cleanup(e.JobID)
	}

	m.resolvePending(e.JobID, val, source, nil)
}

func (m *Manager) markFailedOrPoisoned(e queuestorage.Entry, cause error) {
	retryCount := e.RetryCount + 1
	lastErr := cause.Error()

	if retryCount >= m.maxRetries {
		poisoned := queuestorage.StatusPoisoned
		_ = m.storage.Update(e.JobID, queuestorage.Patch{
			RetryCount: &retryCount,
			Status:     &poisoned,
			LastError:  &lastErr,
		})
		if m.fileSafety != nil {
			_ = m.fileSafety.Cleanup(e.JobID)
		}
		if m.bus != nil {
			m.bus.Publish(event.NewNetworkSyncFailure(e.JobID, e.JobID, e.JobType, cause.Error()))
		}
		if m.jobMetrics != nil {
			m.jobMetrics.IncPoisoned()
		}
		m.resolvePending(e.JobID, nil, "", &rterr.Poisoned{JobID: e.JobID, LastCause: cause})
		return
	}

	pending := queuestorage.StatusPending
	_ = m.storage.Update(e.JobID, queuestorage.Patch{
		RetryCount: &retryCount,
		Status:     &pending,
		LastError:  &lastErr,
	})
}

func (m *Manager) observeDepth() {
	if m.metrics == nil {
		return
	}
	entries, err := m.storage.GetAll()
	if err != nil {
		return
	}
	counts := map[queuestorage.Status]int{}
	for _, e := range entries {
		counts[e.Status]++
	}
	m.metrics.OfflineQueueDepth.WithLabelValues(string(queuestorage.StatusPending)).Set(float64(counts[queuestorage.StatusPending]))
	m.metrics.OfflineQueueDepth.WithLabelValues(string(queuestorage.StatusProcessing)).Set(float64(counts[queuestorage.StatusProcessing]))
	m.metrics.OfflineQueueDepth.WithLabelValues(string(queuestorage.StatusPoisoned)).Set(float64(counts[queuestorage.StatusPoisoned]))
}
