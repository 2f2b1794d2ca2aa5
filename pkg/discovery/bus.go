package discovery

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentdeck/pkg/logger"
)

// Handler receives one change event. A returned error is logged against the
// subscription and does not affect delivery to other subscribers.
type Handler func(ctx context.Context, event ChangeEvent) error

type subscriber struct {
	id      uuid.UUID
	handler Handler
}

// EventBus dispatches change events to registered subscribers in registration
// order, isolating each subscriber's failures.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []subscriber
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a handler and returns its subscription id.
func (b *EventBus) Subscribe(handler Handler) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	b.subscribers = append(b.subscribers, subscriber{id: id, handler: handler})
	return id
}

// Unsubscribe removes the subscription with the given id.
func (b *EventBus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to every subscriber in registration order. A
// subscriber that returns an error or panics is logged with its id and never
// blocks the remaining subscribers.
func (b *EventBus) Emit(ctx context.Context, event ChangeEvent) {
	b.mu.RLock()
	subscribers := make([]subscriber, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	logger.G(ctx).WithFields(map[string]interface{}{
		"kind":     event.Kind,
		"id":       event.ID,
		"category": event.Category,
	}).Debug("Emitting change event")

	for _, sub := range subscribers {
		if err := dispatch(ctx, sub, event); err != nil {
			logger.G(ctx).WithFields(map[string]interface{}{
				"subscriber": sub.id,
				"kind":       event.Kind,
				"id":         event.ID,
			}).WithError(err).Error("Subscriber failed to handle change event")
		}
	}
}

func dispatch(ctx context.Context, sub subscriber, event ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("subscriber panicked: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}
