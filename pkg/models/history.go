package models

import "time"

type HistoryAction string

const (
	HistoryActionStarted      HistoryAction = "started"
	HistoryActionApproved     HistoryAction = "approved"
	HistoryActionRejected     HistoryAction = "rejected"
	HistoryActionEscalated    HistoryAction = "escalated"
	HistoryActionTimeout      HistoryAction = "timeout"
	HistoryActionAutoApproved HistoryAction = "auto_approved"
)

// HistoryEntry is one append-only record in an instance's history.
type HistoryEntry struct {
	StepID    string         `json:"step_id"`
	Action    HistoryAction  `json:"action"`
	ActorID   string         `json:"actor_id"`
	Timestamp time.Time      `json:"timestamp"`
	Comment   string         `json:"comment,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
