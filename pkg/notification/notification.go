// Package notification delivers workflow notifications to people.
package notification

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/stockflow/pkg/eventbus"
	"github.com/dukex/stockflow/pkg/events"
)

type Type string

const (
	TypeApprovalRequest  Type = "approval_request"
	TypeEscalation       Type = "escalation"
	TypeWorkflowRejected Type = "workflow_rejected"
	TypeWorkflowUpdate   Type = "workflow_update"
	TypeTaskAssigned     Type = "task_assigned"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Notification struct {
	Type       Type           `json:"type"`
	Recipients []string       `json:"recipients"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	Priority   Priority       `json:"priority"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Gateway hands a notification to a transport. Callers treat failures as non-fatal.
type Gateway interface {
	Send(ctx context.Context, n Notification) error
}

// LogGateway only logs notifications; used when no transport is configured.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{logger: logger.With("module", "notification")}
}

func (g *LogGateway) Send(ctx context.Context, n Notification) error {
	g.logger.InfoContext(ctx, "notification",
		"type", n.Type,
		"recipients", n.Recipients,
		"subject", n.Subject,
		"priority", n.Priority,
	)

	return nil
}

// EventBusGateway publishes notification.requested events for an external
// delivery service to consume.
type EventBusGateway struct {
	publisher eventbus.EventPublisher
}

func NewEventBusGateway(publisher eventbus.EventPublisher) *EventBusGateway {
	return &EventBusGateway{publisher: publisher}
}

func (g *EventBusGateway) Send(ctx context.Context, n Notification) error {
	instanceID, _ := n.Metadata["instanceId"].(string)

	event := events.NotificationRequested{
		BaseEvent:        events.NewBaseEvent(events.NotificationRequestedEvent, instanceID),
		NotificationType: string(n.Type),
		Recipients:       n.Recipients,
		Subject:          n.Subject,
		Body:             n.Body,
		Priority:         string(n.Priority),
		Payload:          n.Metadata,
	}

	return g.publisher.Publish(ctx, instanceID, event)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, n)

	return nil
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.sent)
}

// SentTo returns the notifications that list recipient.
func (r *Recorder) SentTo(recipient string) []Notification {
	result := make([]Notification, 0)

	for _, n := range r.Sent() {
		if slices.Contains(n.Recipients, recipient) {
			result = append(result, n)
		}
	}

	return result
}
