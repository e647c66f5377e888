package web

import (
	"time"

	"github.com/dukex/stockflow/pkg/engine"
	"github.com/dukex/stockflow/pkg/models"
)

// StartInstanceRequest is the body of POST /instances.
type StartInstanceRequest struct {
	ChainID     string         `json:"chain_id"     validate:"required"`
	EntityID    string         `json:"entity_id"    validate:"required"`
	EntityType  string         `json:"entity_type"  validate:"required"`
	InitiatedBy string         `json:"initiated_by"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ApproveRequest is the body of the approve endpoint.
type ApproveRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Comment string `json:"comment"`
}

// RejectRequest is the body of the reject endpoint. A reason is mandatory.
type RejectRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Reason  string `json:"reason"   validate:"required"`
}

type UpdateChainStatusRequest struct {
	Status  models.ChainStatus `json:"status"   validate:"required,oneof=active paused archived"`
	ActorID string             `json:"actor_id"`
}

// EntityEventRequest is the body of POST /events.
type EntityEventRequest struct {
	Type       models.TriggerType `json:"type"        validate:"required,oneof=entity_create entity_update entity_delete manual"`
	EntityID   string             `json:"entity_id"   validate:"required"`
	EntityType string             `json:"entity_type" validate:"required"`
	ActorID    string             `json:"actor_id"`
	Data       map[string]any     `json:"data,omitempty"`
	OccurredAt *time.Time         `json:"occurred_at,omitempty"`
}

func (r EntityEventRequest) event(now time.Time) models.EntityEvent {
	occurredAt := now
	if r.OccurredAt != nil {
		occurredAt = *r.OccurredAt
	}

	return models.EntityEvent{
		Type:       r.Type,
		EntityID:   r.EntityID,
		EntityType: r.EntityType,
		ActorID:    r.ActorID,
		Data:       r.Data,
		OccurredAt: occurredAt,
	}
}

type ValidateChainResponse struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

type EntityEventResponse struct {
	Started   int                        `json:"started"`
	Instances []*models.WorkflowInstance `json:"instances"`
	Errors    []string                   `json:"errors,omitempty"`
}

type MetricsResponse struct {
	ChainID string `json:"chain_id,omitempty"`
	engine.Metrics
}
