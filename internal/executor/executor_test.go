package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/jobrt/internal/cacheprovider"
	"github.com/geocoder89/jobrt/internal/connectivity"
	"github.com/geocoder89/jobrt/internal/dispatcher"
	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
	"github.com/geocoder89/jobrt/internal/retrypolicy"
	"github.com/geocoder89/jobrt/internal/signalbus"
)

type loadJob struct {
	job.Base
}

func newLoadJob(opts ...job.Option) loadJob {
	return loadJob{Base: job.NewBase("load", opts...)}
}

type loadEvent struct{ Value any }

func (loadEvent) Kind() string { return "load.completed" }

func (j loadJob) MakeEvent(result any) event.DomainEvent {
	return loadEvent{Value: result}
}

func newTestBus() *signalbus.Bus {
	return signalbus.New(signalbus.Config{DefaultPerSecond: 1000})
}

func TestCacheMissSuccess(t *testing.T) {
	registry := dispatcher.NewRegistry()
	bus := newTestBus()
	cache := cacheprovider.NewInMemory(time.Minute)

	registry.Register(newLoadJob(), func(ctx context.Context, j job.Job) (any, error) {
		return 42, nil
	})

	var events []event.Event
	bus.Subscribe(func(e event.Event) { events = append(events, e) })

	eng := New(registry, bus, WithCache(cache))
	j := newLoadJob(job.WithCache("k", time.Minute, false))
	handle := jobhandle.New[any]()

	eng.Execute(context.Background(), j, handle)

	val, source, err := handle.Await()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Fatalf("got %v, want 42", val)
	}
	if source != event.SourceFresh {
		t.Fatalf("got source %v, want fresh", source)
	}

	if cached, ok := cache.Read("k"); !ok || cached != 42 {
		t.Fatalf("expected cache to contain 42, got %v (ok=%v)", cached, ok)
	}

	if len(events) != 2 {
		t.Fatalf("expected Started + domain success events, got %d", len(events))
	}
	if events[0].FrameworkKind != event.KindStarted {
		t.Fatalf("expected first event to be Started, got %v", events[0].FrameworkKind)
	}
}

func TestCacheHitWithRevalidate(t *testing.T) {
	registry := dispatcher.NewRegistry()
	bus := newTestBus()
	cache := cacheprovider.NewInMemory(time.Minute)
	cache.Write("k", "old", time.Minute)

	registry.Register(newLoadJob(), func(ctx context.Context, j job.Job) (any, error) {
		return "new", nil
	})

	var domainPayloads []any
	bus.Subscribe(func(e event.Event) {
		if e.IsDomain() {
			domainPayloads = append(domainPayloads, e.Domain.(loadEvent).Value)
		}
	})

	eng := New(registry, bus, WithCache(cache))
	j := newLoadJob(job.WithCache("k", time.Minute, true))
	handle := jobhandle.New[any]()

	eng.Execute(context.Background(), j, handle)

	val, source, err := handle.Await()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "old" {
		t.Fatalf("handle should resolve to the cached value, got %v", val)
	}
	if source != event.SourceCached {
		t.Fatalf("got source %v, want cached", source)
	}

	if len(domainPayloads) != 2 {
		t.Fatalf("expected cached then fresh domain events, got %d: %v", len(domainPayloads), domainPayloads)
	}
	if domainPayloads[0] != "old" || domainPayloads[1] != "new" {
		t.Fatalf("got %v, want [old new]", domainPayloads)
	}

	if cached, _ := cache.Read("k"); cached != "new" {
		t.Fatalf("expected cache to be refreshed to new, got %v", cached)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	registry := dispatcher.NewRegistry()
	bus := newTestBus()

	attempts := 0
	registry.Register(newLoadJob(), func(ctx context.Context, j job.Job) (any, error) {
		attempts++
		if attempts <= 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	var retryEvents []event.Event
	bus.Subscribe(func(e event.Event) {
		if e.FrameworkKind == event.KindRetrying {
			retryEvents = append(retryEvents, e)
		}
	})

	eng := New(registry, bus)
	policy := retrypolicy.Policy{MaxRetries: 3, BaseDelay: 5 * time.Millisecond}
	j := newLoadJob(job.WithRetryPolicy(policy))
	handle := jobhandle.New[any]()

	start := time.Now()
	eng.Execute(context.Background(), j, handle)
	elapsed := time.Since(start)

	val, _, err := handle.Await()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Fatalf("got %v, want ok", val)
	}
	if len(retryEvents) != 2 {
		t.Fatalf("expected 2 retry events, got %d", len(retryEvents))
	}
	if elapsed < 10*time.Millisecond {
		t.Fatalf("expected at least two backoff delays, elapsed %v", elapsed)
	}
}

func TestTimeoutBeatsProcess(t *testing.T) {
	registry := dispatcher.NewRegistry()
	bus := newTestBus()

	registry.Register(newLoadJob(), func(ctx context.Context, j job.Job) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return "too late", nil
	})

	var timeoutEvents int
	bus.Subscribe(func(e event.Event) {
		if e.FrameworkKind == event.KindTimeout {
			timeoutEvents++
		}
	})

	eng := New(registry, bus)
	j := newLoadJob(job.WithTimeout(50 * time.Millisecond))
	handle := jobhandle.New[any]()

	eng.Execute(context.Background(), j, handle)

	_, _, err := handle.Await()
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if timeoutEvents != 1 {
		t.Fatalf("expected exactly one timeout event, got %d", timeoutEvents)
	}
}

type sendMsgJob struct {
	job.Base
}

func (sendMsgJob) Serialize() ([]byte, error)            { return []byte("{}"), nil }
func (sendMsgJob) OptimisticValue() (any, bool)           { return nil, false }

type fakeOfflineQueue struct {
	enqueued []job.NetworkAction
}

func (f *fakeOfflineQueue) Enqueue(j job.NetworkAction, handle *jobhandle.Handle[any]) error {
	f.enqueued = append(f.enqueued, j)
	return nil
}

func TestOfflineEnqueueLeavesHandleOpen(t *testing.T) {
	registry := dispatcher.NewRegistry()
	bus := newTestBus()
	conn := connectivity.NewManual(false)
	offline := &fakeOfflineQueue{}

	var processed int
	registry.Register(sendMsgJob{}, func(ctx context.Context, j job.Job) (any, error) {
		processed++
		return "sent", nil
	})

	eng := New(registry, bus, WithConnectivity(conn), WithOfflineEnqueuer(offline))
	j := sendMsgJob{Base: job.NewBase("send_msg")}
	handle := jobhandle.New[any]()

	eng.Execute(context.Background(), j, handle)

	if processed != 0 {
		t.Fatalf("expected no process call while offline, got %d", processed)
	}
	if len(offline.enqueued) != 1 {
		t.Fatalf("expected job to be enqueued once, got %d", len(offline.enqueued))
	}

	select {
	case <-handle.Done():
		t.Fatal("handle should remain open with no optimistic value")
	default:
	}
}
