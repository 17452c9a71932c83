package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus surface for the runtime, grounded on the
// teacher's internal/observability.Prom. The HTTP vectors are kept for
// the diagnostics server; the DB vectors are reused by the
// Postgres-backed NetworkQueueStorage; the job vectors are relabeled
// from "per worker poll" to "per dispatched job" and extended with the
// circuit-breaker and offline-queue dimensions this runtime adds.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	JobDuration  *prometheus.HistogramVec
	JobResults   *prometheus.CounterVec
	JobsInFlight prometheus.Gauge

	CircuitDrops      *prometheus.CounterVec
	OfflineQueueDepth *prometheus.GaugeVec

	registry *prometheus.Registry
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobrt",
				Name:      "http_requests_total",
				Help:      "Total diagnostics HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jobrt",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jobrt",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jobrt",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL).",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobrt",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jobrt",
				Subsystem: "jobs",
				Name:      "duration_seconds",
				Help:      "Job execution duration by type and outcome.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"job_type", "outcome"}, // outcome=success|failure|cancelled|timeout
		),
		JobResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobrt",
				Subsystem: "jobs",
				Name:      "results_total",
				Help:      "Job outcomes by type and outcome.",
			},
			[]string{"job_type", "outcome"},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jobrt",
				Subsystem: "jobs",
				Name:      "in_flight",
				Help:      "Current number of executing jobs (per process).",
			},
		),
		CircuitDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobrt",
				Subsystem: "bus",
				Name:      "circuit_drops_total",
				Help:      "Events dropped by the signal bus rate limiter, by event type.",
			},
			[]string{"event_type"},
		),
		OfflineQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jobrt",
				Subsystem: "offline",
				Name:      "queue_depth",
				Help:      "Offline queue entries by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal, m.RequestsDuration, m.InFlight,
		m.DbQueryDuration, m.DbErrorsTotal,
		m.JobDuration, m.JobResults, m.JobsInFlight,
		m.CircuitDrops, m.OfflineQueueDepth,
	)

	m.registry = reg
	return m
}

// Handler returns the Prometheus scrape handler bound to the registry
// m was constructed with, for mounting on the diagnostics server's
// /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		m.InFlight.WithLabelValues(method, route).Inc()
		defer m.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		m.RequestsTotal.WithLabelValues(method, route, status).Inc()
		m.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
