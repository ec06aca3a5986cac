// internal/events/bus.go
package events

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/model"
)

// Bus fans process events out to subscribers. It is owned by the process and
// passed to producers and consumers explicitly.
type Bus struct {
	subscribers map[uuid.UUID]*subscription
	events      chan model.Event
	mutex       sync.RWMutex
	logger      *zap.Logger
	bufferSize  int
}

type subscription struct {
	topics []model.EventType
	ch     chan model.Event
}

func (s *subscription) wants(t model.EventType) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, t)
}

// NewBus creates a new event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[uuid.UUID]*subscription),
		events:      make(chan model.Event, 1000),
		logger:      logger.With(zap.String("component", "event_bus")),
		bufferSize:  100,
	}
}

// Run distributes published events until ctx is done
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case event := <-b.events:
			b.distribute(event)
		case <-ctx.Done():
			return
		}
	}
}

// Publish queues an event without blocking; events are dropped when the bus is full
func (b *Bus) Publish(event model.Event) {
	select {
	case b.events <- event:
	default:
		b.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.Type)),
		)
	}
}

// Subscribe registers a subscriber for the given topics, or for every topic
// when none are given. The returned ID must be passed to Unsubscribe.
func (b *Bus) Subscribe(topics ...model.EventType) (uuid.UUID, <-chan model.Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := uuid.New()
	sub := &subscription{
		topics: topics,
		ch:     make(chan model.Event, b.bufferSize),
	}
	b.subscribers[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of registered subscribers
func (b *Bus) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// distribute delivers an event to every interested subscriber. Slow
// subscribers miss events rather than stalling the bus.
func (b *Bus) distribute(event model.Event) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for id, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Debug("Subscriber slow, event skipped",
				zap.String("subscriber", id.String()),
				zap.String("event_type", string(event.Type)),
			)
		}
	}
}
