// Package saga implements SagaFlow from spec §4.8: a best-effort,
// LIFO compensation stack for a single multi-step orchestrator script.
//
// Grounded in the teacher's internal/db.NewPool connect-then-rollback
// error style (acquire a resource, undo it on the next failure) scaled
// up from one pooled connection to an arbitrary sequence of actions.
package saga

import (
	"log/slog"
	"sync"
)

// Flow runs a sequence of actions, each paired with a compensating
// action that undoes it. Flow is intra-operation and LIFO on failure,
// distinct from undo.Manager which is cross-operation and cursor-based
// (see spec §9, "Saga vs. Undo").
type Flow struct {
	mu            sync.Mutex
	compensations []func() error
	logger        *slog.Logger
}

// New constructs an empty Flow.
func New(logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{logger: logger}
}

// Run executes action. On success, compensate is registered for a
// later Rollback. On failure, action's error is returned unchanged and
// compensate is never registered.
func (f *Flow) Run(action func() (any, error), compensate func() error) (any, error) {
	result, err := action()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.compensations = append(f.compensations, compensate)
	f.mu.Unlock()
	return result, nil
}

// Rollback runs every registered compensation in LIFO order. A failing
// compensation is logged and rollback continues with the next one;
// Rollback never returns an error, matching spec §4.8's best-effort
// contract.
func (f *Flow) Rollback() {
	f.mu.Lock()
	pending := f.compensations
	f.compensations = nil
	f.mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i](); err != nil {
			f.logger.Error("saga: compensation failed during rollback", "error", err)
		}
	}
}

// Commit clears the compensation stack, for use after a successful
// multi-step script that no longer needs to be undone.
func (f *Flow) Commit() {
	f.mu.Lock()
	f.compensations = nil
	f.mu.Unlock()
}
