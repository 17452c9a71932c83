// Command diagnosticsd runs the read-only diagnostics HTTP+SSE surface
// against a shared engine instance, backed by Redis cache and Postgres
// offline-queue storage for a process meant to sit alongside a real
// deployment rather than the in-memory cmd/demo.
//
// Grounded on the teacher's cmd/api/main.go bootstrap (godotenv, config
// load, otel init, graceful shutdown on SIGINT/SIGTERM).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/jobrt/internal/cacheprovider"
	"github.com/geocoder89/jobrt/internal/config"
	"github.com/geocoder89/jobrt/internal/connectivity"
	"github.com/geocoder89/jobrt/internal/db"
	"github.com/geocoder89/jobrt/internal/diagnostics"
	"github.com/geocoder89/jobrt/internal/dispatcher"
	"github.com/geocoder89/jobrt/internal/executor"
	"github.com/geocoder89/jobrt/internal/filesafety"
	"github.com/geocoder89/jobrt/internal/observability"
	"github.com/geocoder89/jobrt/internal/offlinequeue"
	"github.com/geocoder89/jobrt/internal/queuestorage"
	"github.com/geocoder89/jobrt/internal/signalbus"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OtelServiceName, cfg.OtelEndpoint)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		logger.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	jobStats := observability.NewJobMetrics()

	storage := queuestorage.NewPostgres(pool, metrics)

	cache := cacheprovider.NewRedis(cacheprovider.RedisConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		KeyPrefix:  cfg.RedisKeyPrefix,
		DefaultTTL: 5 * time.Minute,
	})
	if err := cache.Ping(ctx); err != nil {
		logger.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	registry := dispatcher.NewRegistry()
	bus := signalbus.New(signalbus.Config{
		DefaultPerSecond: cfg.Bus.MaxEventsPerSecond,
		PerTypeOverride:  cfg.Bus.TypeEventLimits,
	})
	bus.OnDrop(func(eventType string) { metrics.CircuitDrops.WithLabelValues(eventType).Inc() })
	conn := connectivity.NewManual(true)

	eng := executor.New(registry, bus,
		executor.WithCache(cache),
		executor.WithConnectivity(conn),
		executor.WithJobMetrics(jobStats),
		executor.WithLogger(logger),
	)

	// diagnosticsd owns the Postgres-backed offline queue and drains it
	// through eng; the embedding application registers its own job types
	// and decoders on the same registry/manager before job types it cares
	// about can actually drain.
	fileSafety := filesafety.NewLocalDisk(cfg.Offline.FileSafetyDir)

	offline := offlinequeue.New(storage, eng, bus, conn,
		offlinequeue.WithMaxRetries(cfg.Offline.MaxRetries),
		offlinequeue.WithDrainWorkers(cfg.Offline.DrainWorkers),
		offlinequeue.WithLogger(logger),
		offlinequeue.WithMetrics(metrics),
		offlinequeue.WithJobMetrics(jobStats),
		offlinequeue.WithFileSafety(fileSafety),
	)
	if cfg.Offline.DrainOnStart {
		go offline.Drain(ctx)
	}

	diagCfg := diagnostics.DefaultConfig()
	srv := diagnostics.New(diagCfg, registry, storage, bus, metrics, jobStats)
	defer srv.Unsubscribe()

	httpSrv := &http.Server{
		Addr:         addr(cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams hold the connection open
	}

	go func() {
		logger.Info("diagnostics server listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("diagnostics server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down diagnostics server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func addr(port int) string {
	return ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [8]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
