// Package job defines the Job value and its optional capability
// interfaces (EventJob, NetworkAction, ReversibleJob), per spec §3.
//
// Grounded on the teacher's internal/domain/job.Job (id/type/payload/
// status/attempts/timestamps) and internal/jobs.Job, generalized from a
// persisted-row shape to an in-process, polymorphic request value: the
// payload here is the concrete Go value the caller built rather than a
// json.RawMessage, since this engine never needs to round-trip a job
// through a wire format to dispatch it locally (only NetworkAction jobs
// bound for the offline queue get serialized, via their own Serialize
// method).
package job

import (
	"time"

	"github.com/geocoder89/jobrt/internal/cancelctx"
	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/jobid"
	"github.com/geocoder89/jobrt/internal/retrypolicy"
)

// Base carries the identity and optional lifecycle settings shared by
// every Job, per spec §3. Embed Base in a concrete job type and
// implement TypeName to satisfy Job.
type Base struct {
	id                string
	typeName          string
	timeout           time.Duration
	cancellationToken *cancelctx.Token
	retryPolicy       *retrypolicy.Policy
	cacheKey          string
	cacheTTL          time.Duration
	revalidate        bool
}

// Option configures a Base at construction.
type Option func(*Base)

func WithTimeout(d time.Duration) Option {
	return func(b *Base) { b.timeout = d }
}

func WithCancellationToken(t *cancelctx.Token) Option {
	return func(b *Base) { b.cancellationToken = t }
}

func WithRetryPolicy(p retrypolicy.Policy) Option {
	return func(b *Base) { b.retryPolicy = &p }
}

// WithCache sets the cache key and optional TTL. revalidate selects SWR:
// when true, a cache hit still triggers a background Process call.
func WithCache(key string, ttl time.Duration, revalidate bool) Option {
	return func(b *Base) {
		b.cacheKey = key
		b.cacheTTL = ttl
		b.revalidate = revalidate
	}
}

// NewBase mints a fresh id using typeName as the id's type hint, per
// spec §3's "monotonic time + type-hint prefix + random suffix" id shape.
func NewBase(typeName string, opts ...Option) Base {
	b := Base{
		id:       jobid.New(typeName),
		typeName: typeName,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b Base) ID() string                             { return b.id }
func (b Base) TypeName() string                       { return b.typeName }
func (b Base) Timeout() time.Duration                 { return b.timeout }
func (b Base) CancellationToken() *cancelctx.Token     { return b.cancellationToken }
func (b Base) RetryPolicy() *retrypolicy.Policy        { return b.retryPolicy }
func (b Base) CacheKey() string                        { return b.cacheKey }
func (b Base) CacheTTL() time.Duration                 { return b.cacheTTL }
func (b Base) Revalidate() bool                        { return b.revalidate }
func (b Base) HasCache() bool                          { return b.cacheKey != "" }

// Job is the minimal contract the Dispatcher and BaseExecutor need from
// every request value: stable identity plus the optional lifecycle
// settings carried by Base. Concrete job types embed Base and get this
// for free.
type Job interface {
	ID() string
	TypeName() string
	Timeout() time.Duration
	CancellationToken() *cancelctx.Token
	RetryPolicy() *retrypolicy.Policy
	CacheKey() string
	CacheTTL() time.Duration
	Revalidate() bool
	HasCache() bool
}

// EventJob is a Job that knows how to turn its own process() result into
// a domain event for the bus, per spec §3/§4.2.
type EventJob interface {
	Job
	MakeEvent(result any) event.DomainEvent
}

// NetworkAction marks a Job for offline queueing when connectivity is
// down, per spec §4.2 and §4.5. Serialize must produce a payload the
// matching NetworkQueueStorage implementation can persist and that the
// offlinequeue.Decoder registered for the job type (via
// Manager.RegisterDecoder) can reconstruct on drain.
type NetworkAction interface {
	Job
	Serialize() ([]byte, error)
	// OptimisticValue returns a placeholder result to complete the
	// handle immediately with Source == optimistic, and ok == false when
	// no such placeholder exists (the handle is then left open until the
	// queue drains this job successfully).
	OptimisticValue() (value any, ok bool)
}

// ReversibleJob is a Job that can be undone: it knows how to build the
// inverse job from its own result, per spec §3/§4.7.
type ReversibleJob interface {
	Job
	MakeInverse(result any) Job
	// Description returns a human-readable label for undo history UIs;
	// may return "".
	Description() string
}
