package offlinequeue

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/jobrt/internal/connectivity"
	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
	"github.com/geocoder89/jobrt/internal/queuestorage"
	"github.com/geocoder89/jobrt/internal/signalbus"
)

type sendJob struct {
	job.Base
	Body string
}

func (j sendJob) Serialize() ([]byte, error)   { return []byte(j.Body), nil }
func (sendJob) OptimisticValue() (any, bool)   { return nil, false }

type fakeRunner struct {
	fail      bool
	processed int
}

func (r *fakeRunner) Execute(ctx context.Context, j job.Job, handle *jobhandle.Handle[any]) {
	r.processed++
	if r.fail {
		handle.CompleteError(errors.New("boom"))
		return
	}
	handle.Complete("ok", event.SourceFresh)
}

func newTestManager(runner Runner, maxRetries int) (*Manager, *queuestorage.InMemory) {
	storage := queuestorage.NewInMemory()
	bus := signalbus.New(signalbus.Config{DefaultPerSecond: 1000})
	conn := connectivity.NewManual(true)
	m := New(storage, runner, bus, conn, WithMaxRetries(maxRetries))
	m.RegisterDecoder("send", func(payload []byte) (job.NetworkAction, error) {
		return sendJob{Base: job.NewBase("send"), Body: string(payload)}, nil
	})
	return m, storage
}

func TestEnqueuePersistsPendingEntry(t *testing.T) {
	runner := &fakeRunner{}
	m, storage := newTestManager(runner, 5)

	j := sendJob{Base: job.NewBase("send"), Body: "hello"}
	if err := m.Enqueue(j, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := storage.GetAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].RetryCount != 0 || entries[0].Status != queuestorage.StatusPending {
		t.Fatalf("unexpected entry state: %+v", entries[0])
	}
}

func TestDrainRemovesSucceededEntry(t *testing.T) {
	runner := &fakeRunner{}
	m, storage := newTestManager(runner, 5)

	j := sendJob{Base: job.NewBase("send"), Body: "hello"}
	m.Enqueue(j, nil)

	m.Drain(context.Background())

	entries, _ := storage.GetAll()
	if len(entries) != 0 {
		t.Fatalf("expected entry to be removed after successful drain, got %d", len(entries))
	}
	if runner.processed != 1 {
		t.Fatalf("expected exactly one process call, got %d", runner.processed)
	}
}

func TestDrainPoisonsAfterMaxRetries(t *testing.T) {
	runner := &fakeRunner{fail: true}
	m, storage := newTestManager(runner, 2)

	j := sendJob{Base: job.NewBase("send"), Body: "hello"}
	m.Enqueue(j, nil)

	m.Drain(context.Background())
	m.Drain(context.Background())

	entries, _ := storage.GetAll()
	if len(entries) != 1 {
		t.Fatalf("expected poisoned entry to remain, got %d", len(entries))
	}
	if entries[0].Status != queuestorage.StatusPoisoned {
		t.Fatalf("expected status poisoned, got %v", entries[0].Status)
	}
}

func TestDrainResolvesOriginatingHandleOnSuccess(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(runner, 5)

	j := sendJob{Base: job.NewBase("send"), Body: "hello"}
	handle := jobhandle.New[any]()
	if err := m.Enqueue(j, handle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-handle.Done():
		t.Fatal("handle should stay open until drain completes it")
	default:
	}

	m.Drain(context.Background())

	val, source, err := handle.Await()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Fatalf("got %v, want ok", val)
	}
	if source != event.SourceFresh {
		t.Fatalf("got source %v, want fresh", source)
	}
}

func TestDrainResolvesOriginatingHandleOnPoison(t *testing.T) {
	runner := &fakeRunner{fail: true}
	m, _ := newTestManager(runner, 1)

	j := sendJob{Base: job.NewBase("send"), Body: "hello"}
	handle := jobhandle.New[any]()
	if err := m.Enqueue(j, handle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Drain(context.Background())

	if _, _, err := handle.Await(); err == nil {
		t.Fatal("expected the originating handle to fail once the entry is poisoned")
	}
}
