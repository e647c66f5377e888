package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/stockflow/pkg/events"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/notification"
	"github.com/dukex/stockflow/pkg/otelhelper"
	"github.com/dukex/stockflow/pkg/scheduler"
)

func timerKey(instanceID, stepID string) scheduler.Key {
	return scheduler.Key{InstanceID: instanceID, StepID: stepID}
}

// timeoutRetryDelay is how long a timeout whose transition could not be saved
// waits before it is handled again.
const timeoutRetryDelay = time.Minute

type timerOpKind int

const (
	timerArm timerOpKind = iota
	timerCancel
	timerCancelInstance
)

type timerOp struct {
	kind   timerOpKind
	stepID string
	d      time.Duration
}

// arm queues a timer for stepID on the transaction.
func (e *Engine) arm(tx *txn, stepID string, d time.Duration) {
	tx.timers = append(tx.timers, timerOp{kind: timerArm, stepID: stepID, d: d})
}

func (e *Engine) disarm(tx *txn, stepID string) {
	tx.timers = append(tx.timers, timerOp{kind: timerCancel, stepID: stepID})
}

func (e *Engine) disarmAll(tx *txn) {
	tx.timers = append(tx.timers, timerOp{kind: timerCancelInstance})
}

// applyTimers runs the queued timer changes in order. It is called after the
// instance was saved and before its lock is released.
func (e *Engine) applyTimers(tx *txn) {
	instanceID := tx.instance.ID

	for _, op := range tx.timers {
		switch op.kind {
		case timerArm:
			e.schedule(instanceID, op.stepID, op.d)
		case timerCancel:
			e.timers.Cancel(timerKey(instanceID, op.stepID))
		case timerCancelInstance:
			e.timers.CancelInstance(instanceID)
		}
	}

	tx.timers = nil
}

func (e *Engine) schedule(instanceID, stepID string, d time.Duration) {
	e.timers.Arm(timerKey(instanceID, stepID), d, func() {
		e.onTimeout(instanceID, stepID)
	})
}

// onTimeout handles an expired step timer: auto-approve, escalate while the
// budget allows, or time the instance out. A timer that fires after the step
// moved on changes nothing.
func (e *Engine) onTimeout(instanceID, stepID string) {
	ctx, span := otelhelper.StartSpan(context.Background(), e.tracer, "engine.step_timeout",
		otelhelper.InstanceIDKey.String(instanceID),
		otelhelper.StepIDKey.String(stepID),
	)
	defer span.End()

	_, err := e.mutate(ctx, "step_timeout", instanceID, stepID, func(tx *txn) error {
		if tx.instance.Status.IsTerminal() || tx.instance.CurrentStep != stepID {
			tx.logger.DebugContext(ctx, "ignoring late timer", "step_id", stepID)

			return errUnchanged
		}

		step := tx.chain.Step(stepID)
		if step == nil {
			return errUnchanged
		}

		rule := step.Escalation

		switch {
		case rule != nil && rule.AutoApprove:
			e.appendHistory(tx, stepID, models.HistoryActionAutoApproved, models.SystemActor, "Auto-approved after timeout")
			e.enter(tx, successor(step))
		case rule != nil && countSinceStart(tx.instance, stepID, models.HistoryActionEscalated) < e.escalationBudget(rule):
			e.escalate(tx, step)
		default:
			e.appendHistory(tx, stepID, models.HistoryActionTimeout, models.SystemActor, "Step timed out")
			e.finish(tx, models.InstanceStatusTimeout)
		}

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		if IsNotFound(err) {
			e.logger.ErrorContext(ctx, "failed to handle step timeout", "instance_id", instanceID, "step_id", stepID, "error", err)

			return
		}

		// The fired timer is already claimed; re-arm so the step cannot stall.
		e.logger.ErrorContext(ctx, "failed to handle step timeout, retrying",
			"instance_id", instanceID, "step_id", stepID, "retry_in", timeoutRetryDelay, "error", err)
		e.schedule(instanceID, stepID, timeoutRetryDelay)
	}
}

func (e *Engine) escalationBudget(rule *models.EscalationRule) int {
	if rule.MaxEscalations > 0 {
		return rule.MaxEscalations
	}

	return e.maxEscalations
}

// escalate notifies the escalation approvers and re-arms the step timer with
// the escalation timeout.
func (e *Engine) escalate(tx *txn, step *models.WorkflowStep) {
	rule := step.Escalation
	attempt := countSinceStart(tx.instance, step.ID, models.HistoryActionEscalated) + 1

	recipients := e.resolve(tx, rule.EscalateTo)
	if rule.NotifyOriginal {
		for _, original := range e.resolve(tx, step.Approvers) {
			if !slices.Contains(recipients, original) {
				recipients = append(recipients, original)
			}
		}
	}

	e.appendHistory(tx, step.ID, models.HistoryActionEscalated, models.SystemActor,
		fmt.Sprintf("Escalated after timeout (attempt %d)", attempt))

	tx.box.notify(notification.Notification{
		Type:       notification.TypeEscalation,
		Recipients: recipients,
		Subject:    "Escalation: " + step.Name,
		Body:       fmt.Sprintf("Approval of %s %s is overdue and has been escalated to you", tx.instance.EntityType, tx.instance.EntityID),
		Priority:   notification.PriorityHigh,
		Metadata: map[string]any{
			"instanceId":   tx.instance.ID,
			"stepId":       step.ID,
			"workflowName": step.Name,
			"attempt":      attempt,
		},
	})

	chainID := tx.chain.ID
	tx.box.publish(tx.instance.ID, events.InstanceEscalated{
		BaseEvent:  events.NewBaseEvent(events.InstanceEscalatedEvent, tx.instance.ID),
		ChainID:    chainID,
		StepID:     step.ID,
		EscalateTo: recipients,
		Attempt:    attempt,
	})
	tx.box.observe = append(tx.box.observe, func(o Observer) { o.StepEscalated(chainID, step.ID) })

	tx.logger.InfoContext(tx.ctx, "step escalated", "step_id", step.ID, "attempt", attempt, "recipients", recipients)

	timeout := rule.Timeout.Std()
	if timeout <= 0 {
		timeout = step.Timeout.Std()
	}

	if timeout > 0 {
		e.arm(tx, step.ID, timeout)
	}
}
