package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusPending    InstanceStatus = "pending"
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusApproved   InstanceStatus = "approved"
	InstanceStatusRejected   InstanceStatus = "rejected"
	InstanceStatusTimeout    InstanceStatus = "timeout"
	InstanceStatusError      InstanceStatus = "error"
)

// Well-known metadata keys.
const (
	MetadataInitiatedBy   = "initiatedBy"
	MetadataJustification = "justification"
)

// SystemActor is the actor id recorded for transitions the engine performs itself.
const SystemActor = "system"

// IsTerminal reports whether no further transitions are allowed.
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case InstanceStatusApproved, InstanceStatusRejected, InstanceStatusTimeout, InstanceStatusError:
		return true
	default:
		return false
	}
}

// WorkflowInstance is a single execution of a chain against a business entity.
type WorkflowInstance struct {
	ID          string         `json:"id"`
	ChainID     string         `json:"chain_id"`
	EntityID    string         `json:"entity_id"`
	EntityType  string         `json:"entity_type"`
	Status      InstanceStatus `json:"status"`
	CurrentStep string         `json:"current_step,omitempty"`
	History     []HistoryEntry `json:"history"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Initiator returns the user who started the instance, or "" when unknown.
func (i *WorkflowInstance) Initiator() string {
	initiator, _ := i.Metadata[MetadataInitiatedBy].(string)

	return initiator
}

func (i *WorkflowInstance) Append(entry HistoryEntry) {
	i.History = append(i.History, entry)
}

// Complete moves the instance to a terminal status.
func (i *WorkflowInstance) Complete(status InstanceStatus, at time.Time) {
	i.Status = status
	i.CompletedAt = &at
}

// Clone returns a deep copy for a caller to use without holding the instance lock.
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	clone := *i
	clone.History = make([]HistoryEntry, len(i.History))
	clone.Metadata = CloneMetadata(i.Metadata)

	for n, entry := range i.History {
		entry.Metadata = CloneMetadata(entry.Metadata)
		clone.History[n] = entry
	}

	if i.History == nil {
		clone.History = nil
	}

	if i.CompletedAt != nil {
		completedAt := *i.CompletedAt
		clone.CompletedAt = &completedAt
	}

	return &clone
}

// CloneMetadata copies metadata together with the maps and slices nested in it.
func CloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}

	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		out[key] = cloneValue(value)
	}

	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return CloneMetadata(v)
	case []any:
		if v == nil {
			return v
		}

		out := make([]any, len(v))
		for n, item := range v {
			out[n] = cloneValue(item)
		}

		return out
	default:
		return value
	}
}
