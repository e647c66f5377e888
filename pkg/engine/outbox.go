package engine

import (
	"context"

	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/eventbus"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/notification"
)

type keyedEvent struct {
	key   string
	event eventbus.Event
}

// policyActions are the actions of the policies that matched an approval.
type policyActions struct {
	actions  []models.PolicyAction
	instance *models.WorkflowInstance
	actorID  string
}

// outbox collects the side effects of a transition. They are delivered once
// the instance is saved and its lock released.
type outbox struct {
	notifications []notification.Notification
	audits        []audit.Entry
	events        []keyedEvent
	tasks         []Task
	policies      []policyActions
	observe       []func(Observer)
}

func (o *outbox) notify(n notification.Notification) {
	if len(n.Recipients) == 0 {
		return
	}

	o.notifications = append(o.notifications, n)
}

func (o *outbox) record(entry audit.Entry) {
	o.audits = append(o.audits, entry)
}

func (o *outbox) publish(key string, event eventbus.Event) {
	o.events = append(o.events, keyedEvent{key: key, event: event})
}

// flush delivers everything in order. Failures are logged only; they never
// change instance state.
func (e *Engine) flush(ctx context.Context, box *outbox) {
	for _, n := range box.notifications {
		if err := e.gateway.Send(ctx, n); err != nil {
			e.logger.WarnContext(ctx, "failed to send notification",
				"type", n.Type, "recipients", n.Recipients, "error", err)
		}
	}

	for _, task := range box.tasks {
		if err := e.tasks.CreateTask(ctx, task); err != nil {
			e.logger.WarnContext(ctx, "failed to create task",
				"instance_id", task.InstanceID, "step_id", task.StepID, "assignee", task.Assignee, "error", err)
		}
	}

	for _, entry := range box.audits {
		if err := e.audit.Log(ctx, entry); err != nil {
			e.logger.WarnContext(ctx, "failed to record audit entry",
				"action", entry.Action, "entity_id", entry.EntityID, "error", err)
		}
	}

	for _, pa := range box.policies {
		if err := e.governance.ApplyPolicyActions(ctx, pa.actions, pa.instance, pa.actorID); err != nil {
			e.logger.WarnContext(ctx, "failed to apply policy actions",
				"instance_id", pa.instance.ID, "actor_id", pa.actorID, "error", err)
		}
	}

	for _, ke := range box.events {
		if err := e.publisher.Publish(ctx, ke.key, ke.event); err != nil {
			e.logger.WarnContext(ctx, "failed to publish event", "key", ke.key, "error", err)
		}
	}

	for _, fn := range box.observe {
		fn(e.observer)
	}
}
