// Command demo wires the job runtime against in-memory providers and
// walks through the end-to-end scenarios spec §8 describes: cache
// miss/success, cache-hit with stale-while-revalidate, retry-then-
// success, timeout-beats-process, offline-enqueue-then-drain, and
// undo/redo.
//
// Grounded on the teacher's cmd/api/main.go bootstrap shape (load
// config, build a logger, wire collaborators, run), scaled down to a
// single process with no HTTP surface of its own — diagnosticsd serves
// that role separately.
package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/jobrt/internal/cacheprovider"
	"github.com/geocoder89/jobrt/internal/cancelctx"
	"github.com/geocoder89/jobrt/internal/config"
	"github.com/geocoder89/jobrt/internal/connectivity"
	"github.com/geocoder89/jobrt/internal/dispatcher"
	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/executor"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/jobhandle"
	"github.com/geocoder89/jobrt/internal/observability"
	"github.com/geocoder89/jobrt/internal/offlinequeue"
	"github.com/geocoder89/jobrt/internal/orchestrator"
	"github.com/geocoder89/jobrt/internal/queuestorage"
	"github.com/geocoder89/jobrt/internal/retrypolicy"
	"github.com/geocoder89/jobrt/internal/saga"
	"github.com/geocoder89/jobrt/internal/signalbus"
	"github.com/geocoder89/jobrt/internal/undo"
)

// state is the orchestrator's reduced snapshot: a running count of
// events observed, enough for this demo to prove the reducer wiring
// works without modeling a real UI's view model.
type state struct {
	Events int
}

// logObserver is a minimal executor.Observer that logs the lifecycle
// hooks a host application would otherwise wire up to update its own
// UI state outside of the orchestrator's reduced snapshot.
type logObserver struct{ logger *slog.Logger }

func (o logObserver) OnJobStart(j job.Job) {
	o.logger.Debug("job started", "job_type", j.TypeName(), "job_id", j.ID())
}

func (o logObserver) OnJobSuccess(j job.Job, result any, source event.Source) {
	o.logger.Debug("job succeeded", "job_type", j.TypeName(), "job_id", j.ID(), "source", source)
}

func (o logObserver) OnJobError(j job.Job, err error, stack string) {
	o.logger.Warn("job errored", "job_type", j.TypeName(), "job_id", j.ID(), "error", err)
}

func (o logObserver) OnEvent(e event.Event) {}

type fetchProfileJob struct {
	job.Base
	UserID string
}

type profileFetched struct {
	UserID string
	Name   string
}

func (profileFetched) Kind() string { return "profile.fetched" }

func (j fetchProfileJob) MakeEvent(result any) event.DomainEvent {
	return profileFetched{UserID: j.UserID, Name: result.(string)}
}

type flakyJob struct{ job.Base }

type slowJob struct{ job.Base }

type cancellableJob struct{ job.Base }

type sendMessageJob struct {
	job.Base
	Body string
}

func (j sendMessageJob) Serialize() ([]byte, error) { return []byte(j.Body), nil }
func (sendMessageJob) OptimisticValue() (any, bool) { return nil, false }

type renameFileJob struct {
	job.Base
	Path, NewName string
}

func (j renameFileJob) MakeInverse(result any) job.Job {
	return renameFileJob{Base: job.NewBase("rename_file"), Path: j.NewName, NewName: j.Path}
}
func (j renameFileJob) Description() string { return "rename " + j.Path + " to " + j.NewName }

func main() {
	logger := observability.NewLogger("dev")
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		return
	}

	registry := dispatcher.NewRegistry()
	bus := signalbus.New(signalbus.DefaultConfig())
	cache := cacheprovider.NewInMemory(time.Minute)
	conn := connectivity.NewManual(true)
	offlineStorage := queuestorage.NewInMemory()

	attempts := 0
	registry.Register(fetchProfileJob{}, func(ctx context.Context, j job.Job) (any, error) {
		return "Ada Lovelace", nil
	})
	registry.Register(flakyJob{}, func(ctx context.Context, j job.Job) (any, error) {
		attempts++
		if attempts <= 2 {
			return nil, errors.New("upstream unavailable")
		}
		return "recovered", nil
	})
	registry.Register(slowJob{}, func(ctx context.Context, j job.Job) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return "too late", nil
	})
	registry.Register(cancellableJob{}, func(ctx context.Context, j job.Job) (any, error) {
		tok := j.CancellationToken()
		tokCtx, cancel := tok.Context(ctx)
		defer cancel()
		for i := 0; i < 20; i++ {
			if err := tok.ThrowIfCancelled(); err != nil {
				return nil, err
			}
			select {
			case <-tokCtx.Done():
				return nil, tok.ThrowIfCancelled()
			case <-time.After(25 * time.Millisecond):
			}
		}
		return "finished before cancel", nil
	})
	registry.Register(sendMessageJob{}, func(ctx context.Context, j job.Job) (any, error) {
		return "sent", nil
	})
	registry.Register(renameFileJob{}, func(ctx context.Context, j job.Job) (any, error) {
		return "renamed", nil
	})

	// eng never gets an OfflineEnqueuer: it is the Runner the offline
	// queue drains through, so wiring it into Manager would otherwise
	// form a dispatch cycle on a job that is already being drained.
	eng := executor.New(registry, bus, executor.WithCache(cache), executor.WithConnectivity(conn))

	offline := offlinequeue.New(offlineStorage, eng, bus, conn, offlinequeue.WithLogger(logger))
	offline.RegisterDecoder("send_message", func(payload []byte) (job.NetworkAction, error) {
		return sendMessageJob{Base: job.NewBase("send_message"), Body: string(payload)}, nil
	})

	engWithOffline := executor.New(registry, bus,
		executor.WithCache(cache),
		executor.WithConnectivity(conn),
		executor.WithOfflineEnqueuer(offline),
		executor.WithObserver(logObserver{logger: logger}),
	)

	orch := orchestrator.New(state{}, bus, engWithOffline, func(s state, e event.Event, isOwn bool) state {
		s.Events++
		return s
	})
	defer orch.Dispose()

	undoStack := undo.New(orch,
		undo.WithMaxHistory(cfg.Undo.MaxHistory),
		undo.WithCoalesceWindow(cfg.Undo.CoalesceWindow),
		undo.WithBeforeUndo(func(e undo.Entry) bool {
			logger.Info("about to undo", "description", e.Description)
			return true
		}),
		undo.WithAfterUndo(func(e undo.Entry) {
			logger.Info("undo complete", "description", e.Description)
		}),
		undo.WithOnError(func(err error) {
			logger.Error("undo/redo failed", "error", err)
		}),
	)
	flow := saga.New(logger)

	bus.Subscribe(func(e event.Event) {
		logger.Info("event", "kind", e.FrameworkKind, "job_type", e.JobType)
	})

	ctx := context.Background()

	logger.Info("--- scenario: cache miss -> success ---")
	runScenario(orch, fetchProfileJob{
		Base:   job.NewBase("fetch_profile", job.WithCache("profile:u1", time.Minute, false)),
		UserID: "u1",
	})

	logger.Info("--- scenario: cache hit with stale-while-revalidate ---")
	runScenario(orch, fetchProfileJob{
		Base:   job.NewBase("fetch_profile", job.WithCache("profile:u1", time.Minute, true)),
		UserID: "u1",
	})

	logger.Info("--- scenario: retry then success ---")
	runScenario(orch, flakyJob{Base: job.NewBase("flaky", job.WithRetryPolicy(retrypolicy.Default()))})

	logger.Info("--- scenario: timeout beats process ---")
	runScenario(orch, slowJob{Base: job.NewBase("slow", job.WithTimeout(50*time.Millisecond))})

	logger.Info("--- scenario: cooperative cancellation ---")
	cancelTok := cancelctx.New()
	cancelHandle := orch.Dispatch(ctx, cancellableJob{Base: job.NewBase("cancellable", job.WithCancellationToken(cancelTok))})
	time.AfterFunc(60*time.Millisecond, func() { cancelTok.Cancel("user requested stop") })
	if _, _, err := cancelHandle.Await(); err != nil {
		logger.Info("cancellable job ended as expected", "error", err)
	}

	logger.Info("--- scenario: offline enqueue then drain ---")
	conn.SetConnected(false)
	handle := jobhandle.New[any]()
	engWithOffline.Execute(ctx, sendMessageJob{Base: job.NewBase("send_message"), Body: "hello"}, handle)
	conn.SetConnected(true)
	time.Sleep(50 * time.Millisecond)

	logger.Info("--- scenario: undo/redo ---")
	rf := renameFileJob{Base: job.NewBase("rename_file"), Path: "draft.txt", NewName: "final.txt"}
	result, err := flow.Run(func() (any, error) {
		h := orch.Dispatch(ctx, rf)
		val, _, err := h.Await()
		return val, err
	}, func() error {
		logger.Info("compensating rename")
		return nil
	})
	if err == nil {
		undoStack.Push(rf, result, "")
		flow.Commit()
	} else {
		flow.Rollback()
	}
	if err := undoStack.Undo(ctx); err != nil {
		logger.Error("undo failed", "error", err)
	}
	if err := undoStack.Redo(ctx); err != nil {
		logger.Error("redo failed", "error", err)
	}

	logger.Info("demo complete", "orchestrator_events", orch.State().Events)
}

func runScenario(orch *orchestrator.Orchestrator[state], j job.Job) {
	handle := orch.Dispatch(context.Background(), j)
	val, source, err := handle.Await()
	if err != nil {
		slog.Default().Error("scenario failed", "error", err)
		return
	}
	slog.Default().Info("scenario result", "value", val, "source", source)
}
