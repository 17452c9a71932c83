// Package orchestrator implements the reactive state container from
// spec §4.6: an immutable state value, a stream of snapshots, and a
// single reducer invoked for every event observed on the SignalBus.
//
// Grounded on the teacher's internal/actorctx pattern of a small
// context-scoped value object, generalized from "one actor id per
// request" to "one state snapshot per orchestrator instance", with the
// stream itself modeled as a buffered fan-out channel list the way
// the teacher's SSE handler (internal/http/handlers/events.go) fans one
// source out to many HTTP responses.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/executor"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
	"github.com/geocoder89/jobrt/internal/signalbus"
)

// activeJobGrace is the delay before a terminal job id is dropped from
// activeJobIDs, matching spec §4.3/§4.6's "~50ms grace" window so late
// subscribers can still classify the terminal event as self-originated.
const activeJobGrace = 50 * time.Millisecond

// Reducer folds one bus event into the next state snapshot. Returning
// the same value as the current state is allowed; Orchestrator does
// not deduplicate by value-equality, per spec §4.6.
type Reducer[S any] func(state S, e event.Event, isOwnJob bool) S

// Orchestrator holds an immutable state value of type S, subscribes to
// a SignalBus, and folds every observed event through a single Reducer.
type Orchestrator[S any] struct {
	mu    sync.RWMutex
	state S

	bus         *signalbus.Bus
	engine      *executor.Engine
	reducer     Reducer[S]
	unsubscribe func()

	listenersMu sync.Mutex
	listeners   map[int]chan S
	nextID      int

	activeMu      sync.Mutex
	activeJobIDs  map[string]struct{}
}

// New constructs an Orchestrator with initial state, wiring its
// reducer to bus and using engine to actually run dispatched jobs.
func New[S any](initial S, bus *signalbus.Bus, engine *executor.Engine, reducer Reducer[S]) *Orchestrator[S] {
	o := &Orchestrator[S]{
		state:        initial,
		bus:          bus,
		engine:       engine,
		reducer:      reducer,
		listeners:    make(map[int]chan S),
		activeJobIDs: make(map[string]struct{}),
	}

	o.unsubscribe = bus.Subscribe(func(e event.Event) {
		isOwn := o.isJobRunning(e.CorrelationID)
		o.mu.Lock()
		o.state = o.reducer(o.state, e, isOwn)
		snapshot := o.state
		o.mu.Unlock()
		o.broadcast(snapshot)
	})

	return o
}

// State returns the current snapshot.
func (o *Orchestrator[S]) State() S {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Stream registers a listener that receives subsequent snapshots on a
// channel buffered to 16; a snapshot is skipped for a listener whose
// buffer is full. The returned channel is closed by unregister or by
// Dispose.
func (o *Orchestrator[S]) Stream() (ch <-chan S, unregister func()) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()

	id := o.nextID
	o.nextID++
	c := make(chan S, 16)
	o.listeners[id] = c

	var once sync.Once
	return c, func() {
		once.Do(func() {
			o.listenersMu.Lock()
			defer o.listenersMu.Unlock()
			if lc, ok := o.listeners[id]; ok {
				delete(o.listeners, id)
				close(lc)
			}
		})
	}
}

func (o *Orchestrator[S]) broadcast(s S) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	for _, c := range o.listeners {
		select {
		case c <- s:
		default:
		}
	}
}

// Dispatch runs j through the orchestrator's engine, tracking its id in
// activeJobIDs until ~activeJobGrace after the handle terminates.
func (o *Orchestrator[S]) Dispatch(ctx context.Context, j job.Job) *jobhandle.Handle[any] {
	handle := jobhandle.New[any]()

	o.activeMu.Lock()
	o.activeJobIDs[j.ID()] = struct{}{}
	o.activeMu.Unlock()

	go func() {
		<-handle.Done()
		time.AfterFunc(activeJobGrace, func() {
			o.activeMu.Lock()
			delete(o.activeJobIDs, j.ID())
			o.activeMu.Unlock()
		})
	}()

	go o.engine.Execute(ctx, j, handle)
	return handle
}

// IsJobRunning reports whether correlationID belongs to a job this
// orchestrator itself dispatched and has not yet finished the grace
// window for, per spec §4.6's "own dispatch vs. observed on the bus"
// distinction.
func (o *Orchestrator[S]) IsJobRunning(correlationID string) bool {
	return o.isJobRunning(correlationID)
}

func (o *Orchestrator[S]) isJobRunning(correlationID string) bool {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	_, ok := o.activeJobIDs[correlationID]
	return ok
}

// Dispose unsubscribes from the bus and closes every snapshot stream.
func (o *Orchestrator[S]) Dispose() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	for id, c := range o.listeners {
		delete(o.listeners, id)
		close(c)
	}
}
