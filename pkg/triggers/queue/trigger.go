// Package queue consumes entity events from a Redis list and hands them to the engine.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/jonboulle/clockwork"
	redis "github.com/redis/go-redis/v9"
)

var ErrInvalidEvent = errors.New("invalid entity event")

// Handler receives decoded entity events.
type Handler interface {
	HandleEntityEvent(ctx context.Context, event models.EntityEvent) ([]*models.WorkflowInstance, error)
}

type Trigger struct {
	Queue string

	client  redis.UniversalClient
	handler Handler
	clock   clockwork.Clock
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewTrigger(client redis.UniversalClient, queue string, handler Handler, clock clockwork.Clock, logger *slog.Logger) (*Trigger, error) {
	if queue == "" {
		return nil, errors.New("queue trigger queue name is required")
	}

	return &Trigger{
		Queue:   queue,
		client:  client,
		handler: handler,
		clock:   clock,
		stopCh:  make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"queue", queue,
		),
	}, nil
}

// NewClient connects to Redis at the given URL, e.g. redis://localhost:6379/0.
func NewClient(ctx context.Context, url string) (redis.UniversalClient, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (t *Trigger) Start(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Starting QueueTrigger")

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			t.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := t.processMessage(ctx); err != nil {
				t.logger.ErrorContext(ctx, "Error processing message", "error", err)
				t.clock.Sleep(time.Second)
			}
		}
	}
}

func (t *Trigger) processMessage(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, time.Second, t.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	if _, err := t.Handle(ctx, []byte(result[1])); err != nil {
		t.logger.WarnContext(ctx, "Dropping message", "error", err)
	}

	return nil
}

// Handle decodes one message and passes it to the handler. Malformed
// messages are rejected with ErrInvalidEvent.
func (t *Trigger) Handle(ctx context.Context, message []byte) ([]*models.WorkflowInstance, error) {
	event, err := decode(message)
	if err != nil {
		return nil, err
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = t.clock.Now().UTC()
	}

	t.logger.InfoContext(ctx, "Received entity event",
		"type", event.Type,
		"entity_id", event.EntityID,
		"entity_type", event.EntityType,
	)

	return t.handler.HandleEntityEvent(ctx, event)
}

func decode(message []byte) (models.EntityEvent, error) {
	var event models.EntityEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return event, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	switch {
	case event.Type == "":
		return event, fmt.Errorf("%w: type is required", ErrInvalidEvent)
	case event.EntityID == "":
		return event, fmt.Errorf("%w: entity_id is required", ErrInvalidEvent)
	case event.EntityType == "":
		return event, fmt.Errorf("%w: entity_type is required", ErrInvalidEvent)
	}

	return event, nil
}

// Publish pushes an event onto the queue.
func Publish(ctx context.Context, client redis.UniversalClient, queue string, event models.EntityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode entity event: %w", err)
	}

	return client.RPush(ctx, queue, payload).Err()
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping QueueTrigger")

	close(t.stopCh)
	t.wg.Wait()

	if err := t.client.Close(); err != nil {
		t.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
	}

	return nil
}
