// Package audit records who did what to which workflow entity.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionEntityCreate     Action = "entity.create"
	ActionEntityUpdate     Action = "entity.update"
	ActionPolicyCreate     Action = "policy.create"
	ActionPolicyUpdate     Action = "policy.update"
	ActionPolicyDelete     Action = "policy.delete"
	ActionPolicyViolation  Action = "policy.violation"
	ActionApprovalRequest  Action = "approval.request"
	ActionApprovalDecision Action = "approval.decision"
)

type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Entity types used by the workflow engine.
const (
	EntityTypeChain    = "workflow_chain"
	EntityTypeInstance = "workflow_instance"
	EntityTypePolicy   = "workflow_policy"
)

type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	ActorID      string         `json:"actor_id"`
	WorkspaceID  string         `json:"workspace_id,omitempty"`
	Action       Action         `json:"action"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	Details      map[string]any `json:"details,omitempty"`
	Result       Result         `json:"result"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// NewEntry builds a successful entry with a fresh id.
func NewEntry(actorID string, action Action, entityType, entityID string, details map[string]any) Entry {
	return Entry{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		Result:     ResultSuccess,
	}
}

// Sink persists audit entries. Implementations must not modify the entry.
type Sink interface {
	Log(ctx context.Context, entry Entry) error
}
