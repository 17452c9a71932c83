package signalbus

import (
	"testing"

	"github.com/geocoder89/jobrt/internal/event"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New(Config{DefaultPerSecond: 1000})

	var got1, got2 []event.Event
	b.Subscribe(func(e event.Event) { got1 = append(got1, e) })
	b.Subscribe(func(e event.Event) { got2 = append(got2, e) })

	b.Publish(event.NewStarted("id-1", "corr-1", "demo.job"))

	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("expected both subscribers to receive the event, got %d and %d", len(got1), len(got2))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(Config{DefaultPerSecond: 1000})

	var count int
	unsubscribe := b.Subscribe(func(e event.Event) { count++ })
	unsubscribe()

	b.Publish(event.NewStarted("id-1", "corr-1", "demo.job"))
	if count != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", count)
	}
}

func TestPublishSurvivesPanickingSubscriber(t *testing.T) {
	b := New(Config{DefaultPerSecond: 1000})

	var secondCalled bool
	b.Subscribe(func(e event.Event) { panic("boom") })
	b.Subscribe(func(e event.Event) { secondCalled = true })

	b.Publish(event.NewStarted("id-1", "corr-1", "demo.job"))

	if !secondCalled {
		t.Fatal("expected second subscriber to still run after first panicked")
	}
}

func TestRateLimiterDropsOverLimit(t *testing.T) {
	b := New(Config{DefaultPerSecond: 2})

	var drops []string
	b.OnDrop(func(eventType string) { drops = append(drops, eventType) })

	var count int
	b.Subscribe(func(e event.Event) { count++ })

	for i := 0; i < 5; i++ {
		b.Publish(event.NewStarted("id", "corr", "demo.job"))
	}

	if count != 2 {
		t.Fatalf("expected exactly 2 delivered within the window, got %d", count)
	}
	if len(drops) != 3 {
		t.Fatalf("expected 3 drops recorded, got %d", len(drops))
	}
}

func TestRateLimiterPerTypeOverride(t *testing.T) {
	b := New(Config{
		DefaultPerSecond: 1,
		PerTypeOverride:  map[string]int{string(event.KindProgress): 10},
	})

	var count int
	b.Subscribe(func(e event.Event) { count++ })

	for i := 0; i < 5; i++ {
		b.Publish(event.NewProgress("id", "corr", "demo.job", float64(i), ""))
	}

	if count != 5 {
		t.Fatalf("expected override limit to allow all 5 progress events, got %d", count)
	}
}
