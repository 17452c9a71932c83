// Package connectivity implements the ConnectivityProvider collaborator
// from spec §6: a boolean online/offline signal with a change stream.
// The core treats a nil provider as always-online.
package connectivity

import "sync"

// Provider is the external collaborator the BaseExecutor engine consults
// before running a NetworkAction job.
type Provider interface {
	IsConnected() bool
	// OnChange registers a listener invoked with the new connected state
	// whenever it changes; returns an unregister function.
	OnChange(fn func(connected bool)) (unregister func())
}

// Manual is a Provider whose state is flipped explicitly, intended for
// host adapters (platform connectivity plugins are out of scope, per
// spec §1) to push state into, and for tests that need to simulate a
// false->true transition to trigger OfflineQueueManager.Drain.
type Manual struct {
	mu        sync.Mutex
	connected bool
	listeners []func(bool)
}

// NewManual builds a provider starting in the given state.
func NewManual(initiallyConnected bool) *Manual {
	return &Manual{connected: initiallyConnected}
}

func (m *Manual) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manual) OnChange(fn func(connected bool)) func() {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	idx := len(m.listeners) - 1
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if idx < len(m.listeners) {
				m.listeners[idx] = nil
			}
		})
	}
}

// SetConnected updates the state and notifies listeners only on an
// actual transition (matching spec §4.5's "connectivity transition
// false->true" drain trigger, which must not fire on a same-value set).
func (m *Manual) SetConnected(connected bool) {
	m.mu.Lock()
	if m.connected == connected {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, l := range m.listeners {
		if l != nil {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() { _ = recover() }()
			l(connected)
		}()
	}
}

// AlwaysOnline is a Provider that never reports offline. The engine does
// not install it by default: BaseExecutor treats a nil Provider as
// online, which has the same effect.
type AlwaysOnline struct{}

func (AlwaysOnline) IsConnected() bool                           { return true }
func (AlwaysOnline) OnChange(func(bool)) func()                  { return func() {} }
