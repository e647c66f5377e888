// Package eventbus moves engine events over watermill. Instance lifecycle,
// notification and audit events go out on one topic; entity changes come in
// on the same topic and start workflows.
package eventbus

import (
	"context"

	"github.com/dukex/stockflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends event keyed by key; events with the same key keep their order
	// on partitioned transports.
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives a pointer to the decoded event struct, e.g. *events.EntityChanged.
type EventHandler func(ctx context.Context, event any) error

// EventSubscriber dispatches incoming events by type. Handlers must be
// registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error {
	return nil
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(ctx context.Context, key string, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, key string, event Event) error {
	return f(ctx, key, event)
}
