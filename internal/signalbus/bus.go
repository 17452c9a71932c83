// Package signalbus implements the SignalBus collaborator from spec
// §4.1: a synchronous fan-out broadcaster of event.Event with a
// per-event-type circuit breaker, grounded on the teacher's
// middlewares.RateLimiter (fixed-window count/windowEnd reset-on-expiry),
// generalized from "protect an HTTP endpoint from one noisy client" to
// "protect every subscriber from one noisy event type".
package signalbus

import (
	"sync"
	"time"

	"github.com/geocoder89/jobrt/internal/event"
)

// Subscriber receives every event published on the bus it is
// registered with. Panics inside a Subscriber are recovered and
// swallowed by Publish, matching spec §4.1's "one failing subscriber
// must not affect others" invariant.
type Subscriber func(event.Event)

// Config controls the per-event-type token buckets. DefaultPerSecond
// applies to any event type absent from PerTypeOverride.
type Config struct {
	DefaultPerSecond int
	PerTypeOverride  map[string]int
}

func DefaultConfig() Config {
	return Config{
		DefaultPerSecond: 50,
		PerTypeOverride: map[string]int{
			string(event.KindProgress): 100,
		},
	}
}

// Bus is a process-wide or scoped broadcaster. Multiple Bus instances
// may coexist (spec §4.1's "scoped vs. process-wide instances"); each
// keeps its own subscriber list and rate-limiter state.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]Subscriber
	nextID      int

	cfg      Config
	limiters map[string]*tokenBucket
	limMu    sync.Mutex

	drops *dropCounter
}

// dropCounter is an optional hook the host wires to
// observability.Metrics.CircuitDrops; nil by default so tests don't
// need a Prometheus registry.
type dropCounter struct {
	fn func(eventType string)
}

func New(cfg Config) *Bus {
	return &Bus{
		subscribers: make(map[int]Subscriber),
		cfg:         cfg,
		limiters:    make(map[string]*tokenBucket),
	}
}

// OnDrop registers a callback invoked whenever Publish drops an event
// for exceeding its type's rate limit.
func (b *Bus) OnDrop(fn func(eventType string)) {
	b.drops = &dropCounter{fn: fn}
}

// Subscribe registers fn to receive every published event. The
// returned unsubscribe function is idempotent.
func (b *Bus) Subscribe(fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers, id)
		})
	}
}

// Publish broadcasts e to every current subscriber synchronously,
// after checking the per-event-type rate limiter. An event that
// exceeds its bucket is dropped silently (after notifying OnDrop) per
// spec §4.1's circuit-breaker invariant: the bus protects subscribers
// from a runaway publish rate rather than queueing or blocking.
func (b *Bus) Publish(e event.Event) {
	eventType := string(e.FrameworkKind)
	if e.IsDomain() {
		eventType = e.Domain.Kind()
	}

	if !b.allow(eventType) {
		if b.drops != nil {
			b.drops.fn(eventType)
		}
		return
	}

	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		invoke(s, e)
	}
}

func invoke(s Subscriber, e event.Event) {
	defer func() { _ = recover() }()
	s(e)
}

func (b *Bus) allow(eventType string) bool {
	limit := b.cfg.DefaultPerSecond
	if override, ok := b.cfg.PerTypeOverride[eventType]; ok {
		limit = override
	}
	if limit <= 0 {
		return true
	}

	b.limMu.Lock()
	tb, ok := b.limiters[eventType]
	if !ok {
		tb = newTokenBucket(limit)
		b.limiters[eventType] = tb
	}
	b.limMu.Unlock()

	return tb.take()
}

// tokenBucket is a fixed-window counter, grounded on the teacher's
// middlewares.RateLimiter (same count/windowEnd reset-on-expiry logic),
// reused here per-event-type instead of per-client-IP and with the
// window pinned to one second so "events per second" reads literally.
type tokenBucket struct {
	mu        sync.Mutex
	limit     int
	count     int
	windowEnd time.Time
}

func newTokenBucket(perSecond int) *tokenBucket {
	return &tokenBucket{
		limit:     perSecond,
		windowEnd: time.Now().Add(time.Second),
	}
}

func (t *tokenBucket) take() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.After(t.windowEnd) {
		t.count = 0
		t.windowEnd = now.Add(time.Second)
	}

	if t.count >= t.limit {
		return false
	}
	t.count++
	return true
}
