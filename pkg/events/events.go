// Package events defines event types published on the workflow event bus.
package events

import (
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every workflow event; consumers filter on the event_type metadata.
const Topic = "stockflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceStartedEvent     EventType = "instance.started"
	InstanceStepStartedEvent EventType = "instance.step.started"
	InstanceEscalatedEvent   EventType = "instance.escalated"
	InstanceCompletedEvent   EventType = "instance.completed"

	// Side-effect channels.
	NotificationRequestedEvent EventType = "notification.requested"
	AuditRecordedEvent         EventType = "audit.recorded"

	// Inbound entity changes that may start workflows.
	EntityChangedEvent EventType = "entity.changed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
		Metadata:   make(map[string]any),
	}
}

type InstanceStarted struct {
	BaseEvent

	ChainID    string `json:"chain_id"`
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	Initiator  string `json:"initiator"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceStepStarted struct {
	BaseEvent

	ChainID  string          `json:"chain_id"`
	StepID   string          `json:"step_id"`
	StepType models.StepType `json:"step_type"`
}

func (e InstanceStepStarted) GetType() EventType {
	return InstanceStepStartedEvent
}

type InstanceEscalated struct {
	BaseEvent

	ChainID    string   `json:"chain_id"`
	StepID     string   `json:"step_id"`
	EscalateTo []string `json:"escalate_to"`
	Attempt    int      `json:"attempt"`
}

func (e InstanceEscalated) GetType() EventType {
	return InstanceEscalatedEvent
}

type InstanceCompleted struct {
	BaseEvent

	ChainID  string                `json:"chain_id"`
	Status   models.InstanceStatus `json:"status"`
	Duration time.Duration         `json:"duration"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type NotificationRequested struct {
	BaseEvent

	NotificationType string         `json:"notification_type"`
	Recipients       []string       `json:"recipients"`
	Subject          string         `json:"subject"`
	Body             string         `json:"body"`
	Priority         string         `json:"priority"`
	Payload          map[string]any `json:"payload,omitempty"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}

type AuditRecorded struct {
	BaseEvent

	EntryID    string         `json:"entry_id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
	Result     string         `json:"result"`
}

func (e AuditRecorded) GetType() EventType {
	return AuditRecordedEvent
}

type EntityChanged struct {
	BaseEvent

	Entity models.EntityEvent `json:"entity"`
}

func (e EntityChanged) GetType() EventType {
	return EntityChangedEvent
}

func NewEntityChanged(entity models.EntityEvent) EntityChanged {
	return EntityChanged{
		BaseEvent: NewBaseEvent(EntityChangedEvent, ""),
		Entity:    entity,
	}
}
