package undo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
)

type renameJob struct {
	job.Base
	EntityID string
	From, To string
}

func (j renameJob) MakeInverse(result any) job.Job {
	return renameJob{Base: job.NewBase("rename"), EntityID: j.EntityID, From: j.To, To: j.From}
}
func (renameJob) Description() string  { return "rename" }
func (j renameJob) ContentKey() []byte { return []byte(j.EntityID) }

type fakeDispatcher struct {
	dispatched []job.Job
	fail       bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, j job.Job) *jobhandle.Handle[any] {
	f.dispatched = append(f.dispatched, j)
	h := jobhandle.New[any]()
	if f.fail {
		h.CompleteError(errors.New("dispatch failed"))
	} else {
		h.Complete("done", event.SourceFresh)
	}
	return h
}

func TestPushThenUndoDispatchesInverse(t *testing.T) {
	disp := &fakeDispatcher{}
	m := New(disp, WithCoalesceWindow(0))

	j := renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "a", To: "b"}
	m.Push(j, "result", "")

	if m.CurrentIndex() != 0 {
		t.Fatalf("expected current index 0, got %d", m.CurrentIndex())
	}

	if err := m.Undo(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.CurrentIndex() != -1 {
		t.Fatalf("expected current index -1 after undo, got %d", m.CurrentIndex())
	}
	if len(disp.dispatched) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(disp.dispatched))
	}
	inv := disp.dispatched[0].(renameJob)
	if inv.From != "b" || inv.To != "a" {
		t.Fatalf("expected inverse rename b->a, got %+v", inv)
	}
}

func TestUndoThenRedoRestoresCursor(t *testing.T) {
	disp := &fakeDispatcher{}
	m := New(disp, WithCoalesceWindow(0))
	j := renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "a", To: "b"}
	m.Push(j, "result", "")

	if err := m.Undo(context.Background()); err != nil {
		t.Fatalf("undo: %v", err)
	}
	before := m.CurrentIndex()
	if err := m.Redo(context.Background()); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if m.CurrentIndex() != before+1 {
		t.Fatalf("expected index to advance by 1, got %d -> %d", before, m.CurrentIndex())
	}
	if len(disp.dispatched) != 2 {
		t.Fatalf("expected 2 dispatches (inverse, original), got %d", len(disp.dispatched))
	}
}

func TestCoalescingMergesBurstIntoOneEntry(t *testing.T) {
	disp := &fakeDispatcher{}
	m := New(disp, WithCoalesceWindow(500*time.Millisecond))

	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "a", To: "b"}, "r1", "")
	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "b", To: "c"}, "r2", "")
	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "c", To: "d"}, "r3", "")

	if len(m.History()) != 1 {
		t.Fatalf("expected coalesced burst to produce 1 entry, got %d", len(m.History()))
	}

	if err := m.Undo(context.Background()); err != nil {
		t.Fatalf("undo: %v", err)
	}
	inv := disp.dispatched[0].(renameJob)
	if inv.From != "d" || inv.To != "c" {
		t.Fatalf("expected inverse of the last push d->c, got %+v", inv)
	}
}

func TestMaxHistoryEvictsOldestAndShiftsCursor(t *testing.T) {
	disp := &fakeDispatcher{}
	m := New(disp, WithMaxHistory(2), WithCoalesceWindow(0))

	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "a", To: "b"}, "r1", "")
	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "b", To: "c"}, "r2", "")
	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "c", To: "d"}, "r3", "")

	if len(m.History()) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(m.History()))
	}
	if m.CurrentIndex() != 1 {
		t.Fatalf("expected current index 1 after eviction, got %d", m.CurrentIndex())
	}
}

func TestUndoToStopOnErrorUndoesAllWhenNoneFail(t *testing.T) {
	disp := &fakeDispatcher{}
	m := New(disp, WithCoalesceWindow(0))
	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "a", To: "b"}, "r1", "")
	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "b", To: "c"}, "r2", "")
	m.Push(renameJob{Base: job.NewBase("rename"), EntityID: "e1", From: "c", To: "d"}, "r3", "")

	disp.fail = false
	result := m.UndoTo(context.Background(), -1, StopOnError)
	if result.Undone != 3 {
		t.Fatalf("expected all 3 undone, got %d", result.Undone)
	}
	if result.FinalIndex != -1 {
		t.Fatalf("expected final index -1, got %d", result.FinalIndex)
	}
}
