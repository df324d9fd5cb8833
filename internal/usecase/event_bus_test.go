package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/matchlive/internal/domain/event"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
)

func TestEventBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus(logging.NewNop())
	defer bus.Close()

	var mu sync.Mutex
	received := make(map[string][]event.Kind)
	record := func(name string) event.Handler {
		return func(evt event.Event) {
			mu.Lock()
			received[name] = append(received[name], evt.Kind)
			mu.Unlock()
		}
	}

	bus.Subscribe(record("a"))
	bus.Subscribe(record("b"))

	bus.Publish(event.Event{Kind: event.KindGoal, MatchID: "m-1"})
	bus.Publish(event.Event{Kind: event.KindScoreChange, MatchID: "m-1"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received["a"]) == 2 && len(received["b"]) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	for _, name := range []string{"a", "b"} {
		if received[name][0] != event.KindGoal || received[name][1] != event.KindScoreChange {
			t.Fatalf("subscriber %s got events out of order: %v", name, received[name])
		}
	}
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(logging.NewNop())
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	unsubscribe := bus.Subscribe(func(event.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(event.Event{Kind: event.KindGoal})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	unsubscribe()
	bus.Publish(event.Event{Kind: event.KindGoal})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("unsubscribed handler still received events, count=%d", count)
	}
}

func TestEventBus_UnsubscribeDuringPublishBurst(t *testing.T) {
	bus := NewEventBus(logging.NewNop())
	defer bus.Close()

	// Subscribers churn while events are in flight; a channel closed with a
	// send pending would panic the publisher.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			bus.Publish(event.Event{Kind: event.KindGoal, MatchID: "m-1"})
		}
	}()

	for i := 0; i < 200; i++ {
		unsubscribe := bus.Subscribe(func(event.Event) {})
		unsubscribe()
	}

	<-done
}

func TestEventBus_PublishAfterCloseIsNoop(t *testing.T) {
	bus := NewEventBus(logging.NewNop())
	bus.Subscribe(func(event.Event) {})
	bus.Close()

	// Must not panic on the closed channels.
	bus.Publish(event.Event{Kind: event.KindGoal})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
