// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	CreatedEvent   EventType = "created"
	UpdatedEvent   EventType = "updated"
	IterationEvent EventType = "iteration"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// ContinuousListener wraps a broker subscription for consumers that poll
// events one at a time.
type ContinuousListener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewContinuousListener creates a new listener that subscribes to the broker.
// The subscription is automatically cleaned up when the context is cancelled.
func NewContinuousListener[T any](ctx context.Context, broker *Broker[T]) *ContinuousListener[T] {
	return &ContinuousListener[T]{
		ctx: ctx,
		ch:  broker.Subscribe(ctx),
	}
}

// Next blocks until the next event arrives or the context is cancelled.
// The second return value is false once no further events will arrive.
func (l *ContinuousListener[T]) Next() (Event[T], bool) {
	select {
	case <-l.ctx.Done():
		var zero Event[T]
		return zero, false
	case ev, ok := <-l.ch:
		return ev, ok
	}
}
