package observability

import (
	"sync/atomic"
	"time"
)

// JobMetrics is a lock-free snapshot counter for the job lifecycle,
// grounded on the teacher's internal/observability.JobMetrics (same
// atomic-counter/duration-max shape), extended with the cancelled and
// timed-out outcomes the BaseExecutor engine adds on top of the
// teacher's done/failed/retried/dead-lettered set. This is kept
// alongside the Prometheus Metrics vectors rather than replacing them:
// JobMetrics gives a process-local snapshot cheap enough to expose on
// the diagnostics metrics-snapshot endpoint without scraping
// Prometheus' text format back out.
type JobMetrics struct {
	started   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
	cancelled atomic.Uint64
	timedOut  atomic.Uint64
	poisoned  atomic.Uint64

	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{}
}

func (m *JobMetrics) IncStarted()   { m.started.Add(1) }
func (m *JobMetrics) IncSucceeded() { m.succeeded.Add(1) }
func (m *JobMetrics) IncFailed()    { m.failed.Add(1) }
func (m *JobMetrics) IncRetried()   { m.retried.Add(1) }
func (m *JobMetrics) IncCancelled() { m.cancelled.Add(1) }
func (m *JobMetrics) IncTimedOut()  { m.timedOut.Add(1) }
func (m *JobMetrics) IncPoisoned()  { m.poisoned.Add(1) }

func (m *JobMetrics) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	for {
		curr := m.durationMax.Load()
		if ns <= curr {
			return
		}
		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type JobMetricsSnapshot struct {
	Started         uint64
	Succeeded       uint64
	Failed          uint64
	Retried         uint64
	Cancelled       uint64
	TimedOut        uint64
	Poisoned        uint64
	DurationCount   uint64
	AverageDuration time.Duration
	MaxDuration     time.Duration
}

func (m *JobMetrics) Snapshot() JobMetricsSnapshot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()
	max := m.durationMax.Load()

	var avg time.Duration
	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return JobMetricsSnapshot{
		Started:         m.started.Load(),
		Succeeded:       m.succeeded.Load(),
		Failed:          m.failed.Load(),
		Retried:         m.retried.Load(),
		Cancelled:       m.cancelled.Load(),
		TimedOut:        m.timedOut.Load(),
		Poisoned:        m.poisoned.Load(),
		DurationCount:   count,
		AverageDuration: avg,
		MaxDuration:     time.Duration(max),
	}
}
