// Package undo implements the UndoStackManager collaborator from spec
// §4.7: a linear, cursor-based undo/redo history over ReversibleJob
// dispatches, with window-based coalescing and saga-style time-travel.
//
// Grounded on the teacher's internal/domain/job status-machine shape for
// the entry/cursor bookkeeping, generalized from "one row per job" to
// "one UndoEntry per logical edit", and on rezkam-mono's use of
// golang.org/x/crypto/blake2b for its content-addressed coalescing key
// (same hash, different purpose: here it collapses a burst of same-type
// pushes into one entry instead of hashing a secret).
package undo

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
)

// Dispatcher is the narrow slice of Orchestrator/Engine the manager
// needs to re-enter the runtime with an inverse or original job, per
// spec §9's "inject the Dispatcher, don't reach for a singleton" note.
// *orchestrator.Orchestrator[S] satisfies this structurally.
type Dispatcher interface {
	Dispatch(ctx context.Context, j job.Job) *jobhandle.Handle[any]
}

// ContentKeyer is an optional capability a ReversibleJob can implement
// to sharpen coalescing beyond type+time: two pushes of the same type
// within the window only merge if their ContentKey bytes also match
// (e.g. two edits to different fields shouldn't coalesce just because
// they landed in the same burst).
type ContentKeyer interface {
	ContentKey() []byte
}

// Entry is the UndoEntry value from spec §4.7.
type Entry struct {
	Original       job.ReversibleJob
	Inverse        job.Job
	OriginalResult any
	Timestamp      time.Time
	Description    string
	SourceID       string

	coalesceKey string
}

// Strategy selects how undo_to/undo_to_timestamp behaves on a failing
// entry mid-walk, per spec §4.7.
type Strategy int

const (
	StopOnError Strategy = iota
	SkipAndContinue
	RollbackAll
)

// TravelResult is the aggregate result of an undo_to/undo_to_timestamp
// walk.
type TravelResult struct {
	Attempted   int
	Undone      int
	FinalIndex  int
	FailedEntry *Entry
}

var (
	// ErrCannotUndo is returned by Undo when current_index == -1.
	ErrCannotUndo = errors.New("undo: nothing to undo")
	// ErrCannotRedo is returned by Redo when current_index is already
	// at the end of history.
	ErrCannotRedo = errors.New("undo: nothing to redo")
	// ErrUndoCancelled is returned when on_before_undo vetoes the undo.
	ErrUndoCancelled = errors.New("undo: cancelled by on_before_undo hook")
)

// Manager is the UndoStackManager from spec §4.7.
type Manager struct {
	mu             sync.Mutex
	history        []Entry
	currentIndex   int
	maxHistory     int
	coalesceWindow time.Duration
	dispatcher     Dispatcher

	onBeforeUndo func(Entry) bool
	onAfterUndo  func(Entry)
	onError      func(error)
}

type Option func(*Manager)

// WithMaxHistory overrides the default of 100 (spec §6's documented
// default for undo.max_history). n == 0 means unbounded history, per
// spec §6's documented zero-value meaning, not "evict everything".
func WithMaxHistory(n int) Option { return func(m *Manager) { m.maxHistory = n } }

// WithCoalesceWindow overrides the default of 500ms (spec §6's
// documented default for undo.coalesce_window_ms); 0 disables
// coalescing entirely.
func WithCoalesceWindow(d time.Duration) Option {
	return func(m *Manager) { m.coalesceWindow = d }
}

func WithBeforeUndo(fn func(Entry) bool) Option { return func(m *Manager) { m.onBeforeUndo = fn } }
func WithAfterUndo(fn func(Entry)) Option        { return func(m *Manager) { m.onAfterUndo = fn } }
func WithOnError(fn func(error)) Option           { return func(m *Manager) { m.onError = fn } }

// New constructs a Manager bound to dispatcher, per spec §9's
// injected-Dispatcher design note: no process-wide singleton here.
func New(dispatcher Dispatcher, opts ...Option) *Manager {
	m := &Manager{
		currentIndex:   -1,
		maxHistory:     100,
		coalesceWindow: 500 * time.Millisecond,
		dispatcher:     dispatcher,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Push records a completed ReversibleJob dispatch, coalescing into the
// entry at current_index when j shares its type (and, if available, its
// ContentKey) and falls within coalesceWindow of that entry's timestamp.
func (m *Manager) Push(j job.ReversibleJob, result any, sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	key := coalesceKey(j)
	desc := j.Description()
	if desc == "" {
		desc = j.TypeName()
	}

	if m.coalesceWindow > 0 && m.currentIndex >= 0 && m.currentIndex == len(m.history)-1 {
		last := &m.history[m.currentIndex]
		if last.coalesceKey == key && now.Sub(last.Timestamp) <= m.coalesceWindow {
			last.Inverse = j.MakeInverse(result)
			last.Description = desc
			last.Timestamp = now
			return
		}
	}

	entry := Entry{
		Original:       j,
		Inverse:        j.MakeInverse(result),
		OriginalResult: result,
		Timestamp:      now,
		Description:    desc,
		SourceID:       sourceID,
		coalesceKey:    key,
	}

	m.history = append(m.history, entry)
	m.currentIndex++

	if m.maxHistory > 0 && len(m.history) > m.maxHistory {
		m.history = m.history[1:]
		m.currentIndex--
	}
}

func coalesceKey(j job.ReversibleJob) string {
	if ck, ok := j.(ContentKeyer); ok {
		sum := blake2b.Sum256(ck.ContentKey())
		return j.TypeName() + ":" + hex.EncodeToString(sum[:8])
	}
	return j.TypeName()
}

// CanUndo reports whether there is an entry at current_index to undo.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentIndex >= 0
}

// CanRedo reports whether there is an entry past current_index to redo.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentIndex < len(m.history)-1
}

// Undo dispatches the inverse job of the entry at current_index,
// decrementing the cursor only on dispatch success, per spec §4.7.
func (m *Manager) Undo(ctx context.Context) error {
	m.mu.Lock()
	if m.currentIndex < 0 {
		m.mu.Unlock()
		return ErrCannotUndo
	}
	entry := m.history[m.currentIndex]
	m.mu.Unlock()

	if m.onBeforeUndo != nil && !m.onBeforeUndo(entry) {
		return ErrUndoCancelled
	}

	handle := m.dispatcher.Dispatch(ctx, entry.Inverse)
	if _, _, err := handle.Await(); err != nil {
		if m.onError != nil {
			m.onError(err)
		}
		return err
	}

	m.mu.Lock()
	m.currentIndex--
	m.mu.Unlock()

	if m.onAfterUndo != nil {
		m.onAfterUndo(entry)
	}
	return nil
}

// Redo dispatches the original job of the entry past current_index,
// advancing the cursor before dispatch and rolling it back on error,
// per spec §4.7.
func (m *Manager) Redo(ctx context.Context) error {
	m.mu.Lock()
	if m.currentIndex >= len(m.history)-1 {
		m.mu.Unlock()
		return ErrCannotRedo
	}
	nextIndex := m.currentIndex + 1
	entry := m.history[nextIndex]
	m.currentIndex = nextIndex
	m.mu.Unlock()

	handle := m.dispatcher.Dispatch(ctx, entry.Original)
	if _, _, err := handle.Await(); err != nil {
		m.mu.Lock()
		m.currentIndex--
		m.mu.Unlock()
		if m.onError != nil {
			m.onError(err)
		}
		return err
	}

	return nil
}

// UndoTo repeatedly undoes until current_index == targetIndex, applying
// strategy to failures encountered along the way, per spec §4.7.
func (m *Manager) UndoTo(ctx context.Context, targetIndex int, strategy Strategy) TravelResult {
	result := TravelResult{}

	var undoneEntries []Entry

	for {
		m.mu.Lock()
		idx := m.currentIndex
		m.mu.Unlock()
		if idx <= targetIndex {
			break
		}

		m.mu.Lock()
		entry := m.history[m.currentIndex]
		m.mu.Unlock()

		result.Attempted++
		err := m.Undo(ctx)
		if err == nil {
			result.Undone++
			undoneEntries = append(undoneEntries, entry)
			continue
		}

		failing := entry
		result.FailedEntry = &failing

		switch strategy {
		case StopOnError:
			m.mu.Lock()
			result.FinalIndex = m.currentIndex
			m.mu.Unlock()
			return result
		case SkipAndContinue:
			m.mu.Lock()
			m.currentIndex--
			result.FinalIndex = m.currentIndex
			m.mu.Unlock()
			continue
		case RollbackAll:
			for i := len(undoneEntries) - 1; i >= 0; i-- {
				_ = m.Redo(ctx)
			}
			m.mu.Lock()
			result.FinalIndex = m.currentIndex
			m.mu.Unlock()
			return result
		}
	}

	m.mu.Lock()
	result.FinalIndex = m.currentIndex
	m.mu.Unlock()
	return result
}

// UndoToTimestamp finds the last entry at or before ts and delegates to
// UndoTo, per spec §4.7.
func (m *Manager) UndoToTimestamp(ctx context.Context, ts time.Time, strategy Strategy) TravelResult {
	m.mu.Lock()
	target := -1
	for i, e := range m.history {
		if !e.Timestamp.After(ts) {
			target = i
		}
	}
	m.mu.Unlock()

	return m.UndoTo(ctx, target, strategy)
}

// History returns a snapshot copy of the current entries.
func (m *Manager) History() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.history))
	copy(out, m.history)
	return out
}

// CurrentIndex returns the current cursor position.
func (m *Manager) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentIndex
}
