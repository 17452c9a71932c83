package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/jobrt/internal/dispatcher"
	"github.com/geocoder89/jobrt/internal/job"
	"github.com/geocoder89/jobrt/internal/observability"
	"github.com/geocoder89/jobrt/internal/queuestorage"
	"github.com/geocoder89/jobrt/internal/signalbus"
)

type pingJob struct{ job.Base }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := dispatcher.NewRegistry()
	registry.Register(pingJob{}, func(ctx context.Context, j job.Job) (any, error) { return "pong", nil })

	storage := queuestorage.NewInMemory()
	bus := signalbus.New(signalbus.Config{DefaultPerSecond: 1000})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	jobStats := observability.NewJobMetrics()

	cfg := DefaultConfig()
	cfg.RateLimit = 1000
	return New(cfg, registry, storage, bus, metrics, jobStats)
}

func TestHealthzReportsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}

func TestExecutorsListsRegisteredTypes(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/diagnostics/executors", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body struct {
		Executors map[string]string `json:"executors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.Executors) != 1 {
		t.Fatalf("expected 1 registered executor, got %d", len(body.Executors))
	}
}

func TestOfflineQueueReportsEmptyQueue(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/diagnostics/offline-queue", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Count != 0 {
		t.Fatalf("expected empty queue, got count %d", body.Count)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}
