package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/notification"
)

// EntityUpdater applies the params of an `update` action to the business
// entity an instance runs against.
type EntityUpdater interface {
	UpdateEntity(ctx context.Context, entityType, entityID string, updates map[string]any) error
}

// Task is an external work item created for a manual_task step.
type Task struct {
	InstanceID string
	StepID     string
	StepName   string
	Assignee   string
	EntityID   string
	EntityType string
}

// TaskCreator hands manual tasks to an external task system.
type TaskCreator interface {
	CreateTask(ctx context.Context, task Task) error
}

// Observer is told about instance transitions after they are saved.
type Observer interface {
	InstanceStarted(chainID string)
	StepStarted(chainID string, stepType models.StepType)
	StepEscalated(chainID, stepID string)
	InstanceCompleted(chainID string, status models.InstanceStatus, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) InstanceStarted(string) {}
func (nopObserver) StepStarted(string, models.StepType) {}
func (nopObserver) StepEscalated(string, string) {}
func (nopObserver) InstanceCompleted(string, models.InstanceStatus, time.Duration) {}

// NotificationTaskCreator assigns tasks by sending a task_assigned
// notification to the assignee.
type NotificationTaskCreator struct {
	gateway notification.Gateway
}

func NewNotificationTaskCreator(gateway notification.Gateway) *NotificationTaskCreator {
	return &NotificationTaskCreator{gateway: gateway}
}

func (c *NotificationTaskCreator) CreateTask(ctx context.Context, task Task) error {
	return c.gateway.Send(ctx, notification.Notification{
		Type:       notification.TypeTaskAssigned,
		Recipients: []string{task.Assignee},
		Subject:    "Task Assigned: " + task.StepName,
		Body:       fmt.Sprintf("Please complete %s for %s %s", task.StepName, task.EntityType, task.EntityID),
		Priority:   notification.PriorityNormal,
		Metadata: map[string]any{
			"instanceId": task.InstanceID,
			"stepId":     task.StepID,
		},
	})
}
