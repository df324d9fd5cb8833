package usecase

import (
	"sync"

	"github.com/riskibarqy/matchlive/internal/domain/event"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
)

const subscriberBufferSize = 256

// EventBus is the in-process fan-out for domain events. Publish never
// blocks the ingestion path: each subscriber gets a buffered channel and a
// dedicated dispatch goroutine, and a full buffer drops the event for that
// subscriber with a warning.
type EventBus struct {
	mu          sync.Mutex
	subscribers map[int]chan event.Event
	nextID      int
	closed      bool
	wg          sync.WaitGroup
	logger      *logging.Logger
}

func NewEventBus(logger *logging.Logger) *EventBus {
	if logger == nil {
		logger = logging.Default()
	}
	return &EventBus{
		subscribers: make(map[int]chan event.Event),
		logger:      logger,
	}
}

// Subscribe registers a handler and returns an unsubscribe func. The
// handler runs on its own goroutine in publish order.
func (b *EventBus) Subscribe(handler event.Handler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	ch := make(chan event.Event, subscriberBufferSize)
	b.subscribers[id] = ch
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for evt := range ch {
			handler(evt)
		}
	}()

	return func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
		b.mu.Unlock()
	}
}

// Publish fans the event out to every subscriber buffer. Sends stay under
// the bus lock so an unsubscribe or Close cannot close a channel with a
// send in flight; they are non-blocking, so the lock is never held across
// a slow handler.
func (b *EventBus) Publish(evt event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				"type", string(evt.Kind),
				"match_id", evt.MatchID,
			)
		}
	}
}

// Close unregisters every subscriber and waits for in-flight dispatches.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
