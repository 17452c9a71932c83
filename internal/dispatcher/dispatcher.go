// Package dispatcher implements the DispatcherRegistry collaborator
// from spec §4.2: a type-keyed routing table from job type to the
// function that performs its actual work, grounded on the teacher's
// internal/queue/worker registration pattern (a map guarded against
// concurrent register/lookup) but keyed on the Go type of the job
// rather than a string opcode, since jobs here are concrete structs
// satisfying job.Job rather than JSON envelopes.
package dispatcher

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"sync"

	"github.com/geocoder89/jobrt/internal/job"
)

// Work is the business logic bound to a job type: given the concrete
// job, produce its result or an error. The BaseExecutor engine in
// internal/executor wraps a Work call with retry, timeout, cancellation
// and cache semantics; Work itself stays unaware of all of that.
type Work func(ctx context.Context, j job.Job) (result any, err error)

var ErrNoExecutor = errors.New("dispatcher: no executor registered for job type")

// Registry maps the reflect.Type of a Job to the Work that should run
// it. Registration is exact-type-match: a job must be registered under
// its own concrete type, not an interface or embedding type, matching
// spec §4.2's "registered per concrete job type" invariant.
type Registry struct {
	mu    sync.RWMutex
	table map[reflect.Type]Work
}

func NewRegistry() *Registry {
	return &Registry{table: make(map[reflect.Type]Work)}
}

// Register binds the concrete type of sample to work. sample is used
// only to derive the type key; its field values are irrelevant.
func (r *Registry) Register(sample job.Job, work Work) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[typeOf(sample)] = work
}

// Lookup returns the Work registered for j's concrete type, or
// (nil, false) if none was registered.
func (r *Registry) Lookup(j job.Job) (Work, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.table[typeOf(j)]
	return w, ok
}

// Dispatch routes j to its registered Work, returning ErrNoExecutor if
// none matches. Callers that need a structured error (internal/executor
// does, to surface rterr.NoExecutor on the handle) should check Lookup
// themselves instead of relying on this sentinel.
func (r *Registry) Dispatch(ctx context.Context, j job.Job) (any, error) {
	w, ok := r.Lookup(j)
	if !ok {
		return nil, ErrNoExecutor
	}
	return w(ctx, j)
}

// RegisteredTypes returns job_type_name -> executor_type_name for every
// registration, used by the diagnostics surface to report which job
// types the runtime can execute and what runs them. Since Work is a
// closure rather than a named executor struct, the "executor type" is
// the registered function's own runtime name (its defining package and
// function, or call-site name for an anonymous func).
func (r *Registry) RegisteredTypes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.table))
	for t, w := range r.table {
		out[t.String()] = funcName(w)
	}
	return out
}

func funcName(w Work) string {
	pc := reflect.ValueOf(w).Pointer()
	if fn := runtime.FuncForPC(pc); fn != nil {
		return fn.Name()
	}
	return "unknown"
}

// Clear removes every registration, used by tests that need a fresh
// registry between scenarios.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = make(map[reflect.Type]Work)
}

func typeOf(j job.Job) reflect.Type {
	return reflect.TypeOf(j)
}
