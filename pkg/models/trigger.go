package models

import (
	"time"

	"github.com/spf13/cast"
)

type TriggerType string

const (
	TriggerTypeEntityCreate TriggerType = "entity_create"
	TriggerTypeEntityUpdate TriggerType = "entity_update"
	TriggerTypeEntityDelete TriggerType = "entity_delete"
	TriggerTypeManual       TriggerType = "manual"
	TriggerTypeSchedule     TriggerType = "schedule"
)

// WorkflowTrigger starts instances of a chain without an explicit StartWorkflow call.
type WorkflowTrigger struct {
	Type       TriggerType    `json:"type"                  validate:"required,oneof=entity_create entity_update entity_delete manual schedule"`
	EntityType string         `json:"entity_type,omitempty"`
	Conditions map[string]any `json:"conditions,omitempty"`
	// Schedule is a standard five-field cron expression, required for schedule triggers.
	Schedule string `json:"schedule,omitempty" validate:"required_if=Type schedule"`
}

// EntityEvent is a change to a business entity that may start workflows.
type EntityEvent struct {
	Type       TriggerType    `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityType string         `json:"entity_type"`
	ActorID    string         `json:"actor_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Matches reports whether the event satisfies the trigger: same type, same entity
// type when one is set, and every condition key equal in the event data.
func (t *WorkflowTrigger) Matches(event EntityEvent) bool {
	if t.Type != event.Type {
		return false
	}

	if t.EntityType != "" && t.EntityType != event.EntityType {
		return false
	}

	for key, expected := range t.Conditions {
		actual, ok := event.Data[key]
		if !ok || !looselyEqual(actual, expected) {
			return false
		}
	}

	return true
}

func looselyEqual(a, b any) bool {
	return cast.ToString(a) == cast.ToString(b)
}
