package dispatcher

import (
	"context"
	"testing"

	"github.com/geocoder89/jobrt/internal/job"
)

type pingJob struct{ job.Base }

type pongJob struct{ job.Base }

func newPingJob() pingJob { return pingJob{Base: job.NewBase("ping")} }
func newPongJob() pongJob { return pongJob{Base: job.NewBase("pong")} }

func TestRegistryDispatchesByExactType(t *testing.T) {
	r := NewRegistry()
	r.Register(newPingJob(), func(ctx context.Context, j job.Job) (any, error) {
		return "pong", nil
	})

	result, err := r.Dispatch(context.Background(), newPingJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "pong" {
		t.Fatalf("got %v, want pong", result)
	}
}

func TestRegistryNoExecutorForUnregisteredType(t *testing.T) {
	r := NewRegistry()
	r.Register(newPingJob(), func(ctx context.Context, j job.Job) (any, error) {
		return nil, nil
	})

	_, err := r.Dispatch(context.Background(), newPongJob())
	if err != ErrNoExecutor {
		t.Fatalf("got %v, want ErrNoExecutor", err)
	}
}

func TestRegistryClearRemovesRegistrations(t *testing.T) {
	r := NewRegistry()
	r.Register(newPingJob(), func(ctx context.Context, j job.Job) (any, error) { return nil, nil })

	if len(r.RegisteredTypes()) != 1 {
		t.Fatalf("expected one registered type before Clear")
	}

	r.Clear()
	if len(r.RegisteredTypes()) != 0 {
		t.Fatalf("expected no registered types after Clear")
	}
}

func TestRegisteredTypesMapsJobTypeToExecutorName(t *testing.T) {
	r := NewRegistry()
	r.Register(newPingJob(), func(ctx context.Context, j job.Job) (any, error) { return nil, nil })

	types := r.RegisteredTypes()
	execName, ok := types["dispatcher.pingJob"]
	if !ok {
		t.Fatalf("expected a registration for dispatcher.pingJob, got %v", types)
	}
	if execName == "" {
		t.Fatal("expected a non-empty executor name")
	}
}
