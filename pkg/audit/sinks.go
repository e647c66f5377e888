package audit

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/stockflow/pkg/eventbus"
	"github.com/dukex/stockflow/pkg/events"
)

// LogSink writes entries to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "audit")}
}

func (s *LogSink) Log(ctx context.Context, entry Entry) error {
	s.logger.InfoContext(ctx, "audit",
		"audit_id", entry.ID,
		"actor_id", entry.ActorID,
		"action", entry.Action,
		"entity_type", entry.EntityType,
		"entity_id", entry.EntityID,
		"result", entry.Result,
		"details", entry.Details,
	)

	return nil
}

// EventBusSink publishes entries as audit.recorded events, keyed by entity id.
type EventBusSink struct {
	publisher eventbus.EventPublisher
}

func NewEventBusSink(publisher eventbus.EventPublisher) *EventBusSink {
	return &EventBusSink{publisher: publisher}
}

func (s *EventBusSink) Log(ctx context.Context, entry Entry) error {
	event := events.AuditRecorded{
		BaseEvent:  events.NewBaseEvent(events.AuditRecordedEvent, ""),
		EntryID:    entry.ID,
		ActorID:    entry.ActorID,
		Action:     string(entry.Action),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    entry.Details,
		Result:     string(entry.Result),
	}

	if entry.EntityType == EntityTypeInstance {
		event.InstanceID = entry.EntityID
	}

	return s.publisher.Publish(ctx, entry.EntityID, event)
}

// MultiSink fans an entry out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Log(ctx context.Context, entry Entry) error {
	var errs []error

	for _, sink := range m {
		if err := sink.Log(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Query filters entries held by a MemorySink. Zero fields match everything.
type Query struct {
	ActorID    string
	Action     Action
	EntityType string
	EntityID   string
	Since      time.Time
	Limit      int
}

func (q Query) matches(entry Entry) bool {
	switch {
	case q.ActorID != "" && entry.ActorID != q.ActorID:
		return false
	case q.Action != "" && entry.Action != q.Action:
		return false
	case q.EntityType != "" && entry.EntityType != q.EntityType:
		return false
	case q.EntityID != "" && entry.EntityID != q.EntityID:
		return false
	case !q.Since.IsZero() && entry.Timestamp.Before(q.Since):
		return false
	default:
		return true
	}
}

// MemorySink keeps an append-only in-process log.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Log(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)

	return nil
}

// Query returns matching entries in insertion order.
func (s *MemorySink) Query(q Query) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Entry, 0)

	for _, entry := range s.entries {
		if !q.matches(entry) {
			continue
		}

		result = append(result, entry)
		if q.Limit > 0 && len(result) == q.Limit {
			break
		}
	}

	return result
}

func (s *MemorySink) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.entries)
}
