package jobhandle

import (
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/jobrt/internal/event"
)

func TestHandleCompleteIsIdempotent(t *testing.T) {
	h := New[string]()
	h.Complete("first", event.SourceFresh)
	h.Complete("second", event.SourceCached)

	val, source, err := h.Await()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "first" {
		t.Fatalf("got %v, want first", val)
	}
	if source != event.SourceFresh {
		t.Fatalf("got source %v, want fresh", source)
	}
}

func TestHandleCompleteErrorWins(t *testing.T) {
	h := New[string]()
	wantErr := errors.New("boom")
	h.CompleteError(wantErr)

	_, _, err := h.Await()
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestHandleProgressDeliversToMultipleListeners(t *testing.T) {
	h := New[int]()

	ch1, unregister1 := h.Progress()
	defer unregister1()
	ch2, unregister2 := h.Progress()
	defer unregister2()

	h.Emit(1)
	h.Emit(2)

	for _, ch := range []<-chan int{ch1, ch2} {
		select {
		case v := <-ch:
			if v != 1 {
				t.Fatalf("got %d, want 1", v)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for progress value")
		}
	}
}

func TestHandleDoneClosesOnCompletion(t *testing.T) {
	h := New[string]()

	select {
	case <-h.Done():
		t.Fatal("Done closed before Complete")
	default:
	}

	h.Complete("finished", event.SourceFresh)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Done did not close after Complete")
	}
}

func TestHandleEmitAfterCompletionIsNoop(t *testing.T) {
	h := New[int]()
	ch, unregister := h.Progress()
	defer unregister()

	h.Complete("done", event.SourceFresh)
	h.Emit(42)

	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("expected no progress value after completion, got %d", v)
		}
	case <-time.After(200 * time.Millisecond):
		// no value delivered, which is correct; channel closes later on disposal.
	}
}
