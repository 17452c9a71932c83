// Package jobhandle implements the JobHandle collaborator from spec
// §4.3: a single-shot terminal future paired with a multi-listener
// progress stream, grounded on the teacher's internal/queue/worker
// result-channel pattern, generalized from "one channel, one reader"
// to "one terminal value, many progress subscribers" since the
// diagnostics SSE surface and the caller both need to observe the same
// job concurrently.
package jobhandle

import (
	"sync"
	"time"

	"github.com/geocoder89/jobrt/internal/event"
)

// Result is the terminal outcome of a job: exactly one of Value or Err
// is meaningful, mirroring the success/failure split of event.Event.
// Source tags Value's provenance (fresh/cached/optimistic) per spec
// §3's JobResult<T> = (data, source); it is the zero Source ("") on a
// failure, where it carries no meaning.
type Result struct {
	Value  any
	Source event.Source
	Err    error
}

// disposeGrace is the delay before a completed handle's progress
// channels are torn down, giving slow subscribers a chance to observe
// the terminal event before the handle disappears (spec §4.6's
// "~50ms grace" removal window, reused here for handle disposal).
const disposeGrace = 50 * time.Millisecond

// Handle is returned to the caller that dispatched a job. Await blocks
// until the job reaches a terminal state; Progress delivers any
// intermediate progress events emitted before that point, and is safe
// to call from multiple goroutines (each gets its own listener
// channel).
type Handle[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	result    Result
	completed bool

	listeners map[int]chan T
	nextID    int
	disposed  bool
}

func New[T any]() *Handle[T] {
	return &Handle[T]{
		done:      make(chan struct{}),
		listeners: make(map[int]chan T),
	}
}

// Await blocks until the job completes (successfully or not) and
// returns its terminal value, source, and error exactly as Complete or
// CompleteError set them.
func (h *Handle[T]) Await() (any, event.Source, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result.Value, h.result.Source, h.result.Err
}

// Done exposes the terminal channel directly, for callers that want to
// select on it alongside other events instead of blocking in Await.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Complete resolves the handle successfully with value's provenance
// tagged by source. Idempotent: only the first call has any effect,
// matching spec §4.3's "terminal state is set exactly once" invariant.
func (h *Handle[T]) Complete(value any, source event.Source) {
	h.complete(Result{Value: value, Source: source})
}

// CompleteError resolves the handle with a failure.
func (h *Handle[T]) CompleteError(err error) {
	h.complete(Result{Err: err})
}

func (h *Handle[T]) complete(r Result) {
	h.mu.Lock()
	if h.completed {
		h.mu.Unlock()
		return
	}
	h.completed = true
	h.result = r
	close(h.done)
	h.mu.Unlock()

	time.AfterFunc(disposeGrace, h.disposeListeners)
}

// Progress registers a listener that receives every progress event
// emitted before the job completes. The returned channel is closed
// once the job reaches a terminal state (after the disposal grace
// period) or once unregister is called, whichever comes first.
func (h *Handle[T]) Progress() (ch <-chan T, unregister func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	c := make(chan T, 16)
	if h.disposed {
		close(c)
		return c, func() {}
	}
	h.listeners[id] = c

	var once sync.Once
	return c, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if lc, ok := h.listeners[id]; ok {
				delete(h.listeners, id)
				close(lc)
			}
		})
	}
}

// Emit delivers a progress value to every current listener. Emit after
// completion is a silent no-op: by the time a job is terminal its
// progress stream is no longer meaningful.
func (h *Handle[T]) Emit(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.completed {
		return
	}
	for _, c := range h.listeners {
		select {
		case c <- value:
		default:
			// slow listener; drop rather than block the executor.
		}
	}
}

func (h *Handle[T]) disposeListeners() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}
	h.disposed = true
	for id, c := range h.listeners {
		delete(h.listeners, id)
		close(c)
	}
}
