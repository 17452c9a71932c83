// Package diagnostics implements the read-only introspection surface
// SPEC_FULL.md adds on top of the core engine: registered executors,
// offline queue depth, a bounded recent-events feed (polled and
// live-tailed over SSE), health, and a Prometheus scrape endpoint.
//
// Grounded on the teacher's cmd/api wiring (gin.Engine + otelgin +
// the internal/middlewares stack) and internal/observability.Prom's
// GinHandleMiddleware, generalized from "serve the domain API" to
// "serve a diagnostics-only view of the job runtime" — this surface
// never accepts writes, so RequireJSON/auth concerns from the
// teacher's original API surface have no counterpart here.
package diagnostics

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/jobrt/internal/dispatcher"
	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/middlewares"
	"github.com/geocoder89/jobrt/internal/observability"
	"github.com/geocoder89/jobrt/internal/queuestorage"
	"github.com/geocoder89/jobrt/internal/signalbus"
)

// Config controls the diagnostics surface's own policy knobs, kept
// separate from the engine's own config.Config since this server may
// not run in every process that embeds the engine.
type Config struct {
	AllowedOrigins  []string
	MaxBodyBytes    int64
	RateLimit       int
	RateLimitWindow time.Duration
	RingBufferSize  int
}

func DefaultConfig() Config {
	return Config{
		AllowedOrigins:  nil,
		MaxBodyBytes:    1 << 20,
		RateLimit:       60,
		RateLimitWindow: time.Minute,
		RingBufferSize:  500,
	}
}

// Server is the diagnostics HTTP+SSE surface.
type Server struct {
	engine   *gin.Engine
	registry *dispatcher.Registry
	storage  queuestorage.Storage
	bus      *signalbus.Bus
	metrics  *observability.Metrics
	jobStats *observability.JobMetrics
	ring     *ring

	unsubscribe func()
}

// New builds the diagnostics gin.Engine and subscribes a ring buffer to
// bus. Call Unsubscribe (or let the process exit) to stop feeding it.
func New(cfg Config, registry *dispatcher.Registry, storage queuestorage.Storage, bus *signalbus.Bus, metrics *observability.Metrics, jobStats *observability.JobMetrics) *Server {
	s := &Server{
		registry: registry,
		storage:  storage,
		bus:      bus,
		metrics:  metrics,
		jobStats: jobStats,
		ring:     newRing(cfg.RingBufferSize),
	}

	s.unsubscribe = bus.Subscribe(func(e event.Event) { s.ring.push(e) })

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("jobrt-diagnostics"))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	if metrics != nil {
		r.Use(metrics.GinHandleMiddleware())
	}

	limiter := middlewares.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	r.Use(limiter.RateLimiterMiddleware(middlewares.KeyByIP))

	r.GET("/healthz", s.handleHealthz)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	r.GET("/diagnostics/executors", s.handleExecutors)
	r.GET("/diagnostics/offline-queue", s.handleOfflineQueue)
	r.GET("/diagnostics/metrics-snapshot", s.handleMetricsSnapshot)
	r.GET("/diagnostics/events", s.handleRecentEvents)
	r.GET("/diagnostics/events/stream", s.handleEventStream)

	s.engine = r
	return s
}

// Handler returns the underlying http.Handler, for embedding behind a
// caller-managed http.Server (see cmd/diagnosticsd).
func (s *Server) Handler() http.Handler { return s.engine }

// Unsubscribe stops the ring buffer from observing further bus events.
func (s *Server) Unsubscribe() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleExecutors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"executors": s.registry.RegisteredTypes()})
}

func (s *Server) handleOfflineQueue(c *gin.Context) {
	entries, err := s.storage.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "queue_unavailable", "message": err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

func (s *Server) handleMetricsSnapshot(c *gin.Context) {
	body := gin.H{}
	if s.jobStats != nil {
		body["jobs"] = s.jobStats.Snapshot()
	}
	if s.storage != nil {
		if entries, err := s.storage.GetAll(); err == nil {
			counts := map[queuestorage.Status]int{}
			for _, e := range entries {
				counts[e.Status]++
			}
			body["offline_queue"] = counts
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRecentEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": s.ring.snapshot()})
}

// handleEventStream live-tails every event published on the bus,
// starting with the ring buffer's current contents so a newly
// connected client doesn't miss the recent past.
func (s *Server) handleEventStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "stream_unsupported", "message": "response writer does not support flushing"}})
		return
	}

	for _, e := range s.ring.snapshot() {
		writeSSE(c.Writer, e)
	}
	flusher.Flush()

	live := make(chan event.Event, 64)
	unsubscribe := s.bus.Subscribe(func(e event.Event) {
		select {
		case live <- e:
		default:
		}
	})
	defer unsubscribe()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-live:
			writeSSE(c.Writer, e)
			flusher.Flush()
		case <-heartbeat.C:
			sse.Encode(c.Writer, sse.Event{Event: "heartbeat", Data: time.Now().UTC()})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e event.Event) {
	sse.Encode(w, sse.Event{
		Event: string(e.FrameworkKind),
		Data:  e,
	})
}
