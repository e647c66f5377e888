package engine

import (
	"context"
	"fmt"
	"maps"

	"github.com/dukex/stockflow/pkg/approvers"
	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/events"
	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/notification"
	"github.com/dukex/stockflow/pkg/otelhelper"
	"github.com/dukex/stockflow/pkg/policy"
	"github.com/dukex/stockflow/pkg/registry"
	"github.com/dukex/stockflow/pkg/template"
)

const commentNoBranchMatched = "No branch condition matched; instance approved"

// ApproveStep records an approval of the current step. A parallel step only
// completes once every required approver has approved since it started.
func (e *Engine) ApproveStep(ctx context.Context, instanceID, stepID, actorID, comment string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.approve_step",
		otelhelper.InstanceIDKey.String(instanceID),
		otelhelper.StepIDKey.String(stepID),
		otelhelper.ActorIDKey.String(actorID),
	)
	defer span.End()

	instance, err := e.mutate(ctx, "approve_step", instanceID, stepID, func(tx *txn) error {
		step, err := currentStep(tx, stepID)
		if err != nil {
			return err
		}

		if err := e.checkGovernance(tx, actorID); err != nil {
			return err
		}

		e.appendHistory(tx, stepID, models.HistoryActionApproved, actorID, comment)
		tx.box.record(e.auditEntry(actorID, audit.ActionApprovalDecision, tx.instance, map[string]any{
			"decision": "approved",
			"stepId":   stepID,
			"comment":  comment,
		}))

		if step.IsParallel() {
			approved := len(approvalsSinceStart(tx.instance, stepID))
			if required := step.RequiredApprovals(); approved < required {
				tx.logger.DebugContext(ctx, "awaiting quorum", "step_id", stepID, "approved", approved, "required", required)

				return nil
			}
		}

		e.disarm(tx, stepID)
		e.enter(tx, successor(step))

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(otelhelper.InstanceStatusKey.String(string(instance.Status)))

	return instance, nil
}

// RejectStep ends the instance as rejected and tells the initiator. Any step
// of the chain may reject, not only the one the instance waits on.
func (e *Engine) RejectStep(ctx context.Context, instanceID, stepID, actorID, reason string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.reject_step",
		otelhelper.InstanceIDKey.String(instanceID),
		otelhelper.StepIDKey.String(stepID),
		otelhelper.ActorIDKey.String(actorID),
	)
	defer span.End()

	instance, err := e.mutate(ctx, "reject_step", instanceID, stepID, func(tx *txn) error {
		if _, err := liveStep(tx, stepID); err != nil {
			return err
		}

		e.disarm(tx, stepID)
		e.appendHistory(tx, stepID, models.HistoryActionRejected, actorID, reason)
		tx.box.record(e.auditEntry(actorID, audit.ActionApprovalDecision, tx.instance, map[string]any{
			"decision": "rejected",
			"stepId":   stepID,
			"reason":   reason,
		}))

		initiator := tx.instance.Initiator()
		if initiator == "" {
			initiator = models.SystemActor
		}

		tx.box.notify(notification.Notification{
			Type:       notification.TypeWorkflowRejected,
			Recipients: []string{initiator},
			Subject:    "Workflow Rejected",
			Body:       fmt.Sprintf("Workflow for %s %s was rejected: %s", tx.instance.EntityType, tx.instance.EntityID, reason),
			Priority:   notification.PriorityNormal,
			Metadata:   map[string]any{"instanceId": tx.instance.ID, "stepId": stepID},
		})

		e.finish(tx, models.InstanceStatusRejected)

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return instance, nil
}

// liveStep checks that stepID exists and the instance is not finished yet.
func liveStep(tx *txn, stepID string) (*models.WorkflowStep, error) {
	step := tx.chain.Step(stepID)
	if step == nil {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}

	if tx.instance.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: instance is %s", ErrInvalidState, tx.instance.Status)
	}

	return step, nil
}

// currentStep is liveStep plus a check that stepID is the step the instance
// waits on.
func currentStep(tx *txn, stepID string) (*models.WorkflowStep, error) {
	step, err := liveStep(tx, stepID)
	if err != nil {
		return nil, err
	}

	if tx.instance.CurrentStep != stepID {
		return nil, fmt.Errorf("%w: current step is %q", ErrInvalidState, tx.instance.CurrentStep)
	}

	return step, nil
}

// checkGovernance validates the approval. Violations block it in enforcing
// mode and are audited otherwise. The actions of the compliant policies that
// match are applied once the approval is saved.
func (e *Engine) checkGovernance(tx *txn, actorID string) error {
	if e.governance == nil {
		return nil
	}

	result := e.governance.ValidateInstance(tx.instance, tx.chain, actorID)
	if !result.Valid && e.enforce {
		return &governance.ViolationError{InstanceID: tx.instance.ID, Violations: result.Violations}
	}

	e.queuePolicyActions(tx, actorID)

	if result.Valid {
		return nil
	}

	tx.logger.WarnContext(tx.ctx, "governance violations", "actor_id", actorID, "violations", result.Violations)

	entry := e.auditEntry(actorID, audit.ActionPolicyViolation, tx.instance, map[string]any{
		"violations": result.Violations,
		"stepId":     tx.instance.CurrentStep,
	})
	entry.Result = audit.ResultFailure

	tx.box.record(entry)

	return nil
}

func (e *Engine) queuePolicyActions(tx *txn, actorID string) {
	var actions []models.PolicyAction

	for _, evaluation := range e.governance.EvaluatePolicies(tx.instance, tx.chain, actorID) {
		if evaluation.Compliant {
			actions = append(actions, evaluation.Actions...)
		}
	}

	if len(actions) == 0 {
		return
	}

	tx.box.policies = append(tx.box.policies, policyActions{
		actions:  actions,
		instance: tx.instance.Clone(),
		actorID:  actorID,
	})
}

func (e *Engine) appendHistory(tx *txn, stepID string, action models.HistoryAction, actorID, comment string) {
	tx.instance.Append(models.HistoryEntry{
		StepID:    stepID,
		Action:    action,
		ActorID:   actorID,
		Timestamp: e.now(),
		Comment:   comment,
	})
}

// sinceStart returns the history entries of stepID recorded after the step
// last started.
func sinceStart(instance *models.WorkflowInstance, stepID string) []models.HistoryEntry {
	start := 0

	for i := len(instance.History) - 1; i >= 0; i-- {
		entry := instance.History[i]
		if entry.StepID == stepID && entry.Action == models.HistoryActionStarted {
			start = i + 1

			break
		}
	}

	entries := make([]models.HistoryEntry, 0)

	for _, entry := range instance.History[start:] {
		if entry.StepID == stepID {
			entries = append(entries, entry)
		}
	}

	return entries
}

// approvalsSinceStart returns the distinct actors that approved stepID since it started.
func approvalsSinceStart(instance *models.WorkflowInstance, stepID string) []string {
	actors := make([]string, 0)
	seen := make(map[string]bool)

	for _, entry := range sinceStart(instance, stepID) {
		if entry.Action != models.HistoryActionApproved || seen[entry.ActorID] {
			continue
		}

		seen[entry.ActorID] = true
		actors = append(actors, entry.ActorID)
	}

	return actors
}

func countSinceStart(instance *models.WorkflowInstance, stepID string, action models.HistoryAction) int {
	count := 0

	for _, entry := range sinceStart(instance, stepID) {
		if entry.Action == action {
			count++
		}
	}

	return count
}

// successor is the step that follows a completed step. Only the first of
// several next steps is taken.
func successor(step *models.WorkflowStep) string {
	if len(step.NextSteps) == 0 {
		return ""
	}

	return step.NextSteps[0]
}

// enter dispatches stepID and keeps going through steps that complete without
// outside input, until one waits or the instance ends. An empty stepID
// approves the instance.
func (e *Engine) enter(tx *txn, stepID string) {
	entered := make(map[string]bool)

	for {
		if stepID == "" {
			e.finish(tx, models.InstanceStatusApproved)

			return
		}

		step := tx.chain.Step(stepID)
		if step == nil {
			e.fail(tx, tx.instance.CurrentStep, fmt.Errorf("%w: next step %q", ErrStepNotFound, stepID))

			return
		}

		if entered[stepID] {
			e.fail(tx, stepID, fmt.Errorf("%w: step %q re-entered without input", ErrInvalidState, stepID))

			return
		}

		entered[stepID] = true

		next, awaiting := e.dispatch(tx, step)

		if tx.instance.Status.IsTerminal() {
			return
		}

		if awaiting {
			if step.Timeout > 0 {
				e.arm(tx, step.ID, step.Timeout.Std())
			}

			return
		}

		stepID = next
	}
}

// dispatch starts a step. It returns the next step to enter, or awaiting when
// the step needs outside input.
func (e *Engine) dispatch(tx *txn, step *models.WorkflowStep) (string, bool) {
	instance := tx.instance
	instance.CurrentStep = step.ID

	e.appendHistory(tx, step.ID, models.HistoryActionStarted, models.SystemActor, "")

	tx.box.publish(instance.ID, events.InstanceStepStarted{
		BaseEvent: events.NewBaseEvent(events.InstanceStepStartedEvent, instance.ID),
		ChainID:   tx.chain.ID,
		StepID:    step.ID,
		StepType:  step.Type,
	})
	tx.box.observe = append(tx.box.observe, func(o Observer) { o.StepStarted(tx.chain.ID, step.Type) })

	tx.logger.DebugContext(tx.ctx, "step started", "step_id", step.ID, "step_type", step.Type)

	if policy.AutoApprove(step.AutoApprove, instance) {
		e.appendHistory(tx, step.ID, models.HistoryActionAutoApproved, models.SystemActor, "Auto-approval condition met")

		return successor(step), false
	}

	switch step.Type {
	case models.StepTypeApproval:
		e.requestApprovals(tx, step)

		return "", true
	case models.StepTypeManualTask:
		e.assignTasks(tx, step)

		return "", true
	case models.StepTypeNotification:
		e.sendStepNotifications(tx, step)

		return successor(step), false
	case models.StepTypeAutomated:
		if err := e.runAutomation(tx, step); err != nil {
			e.fail(tx, step.ID, err)

			return "", false
		}

		return successor(step), false
	case models.StepTypeConditional:
		return e.branch(tx, step), false
	default:
		e.fail(tx, step.ID, fmt.Errorf("%w: unknown step type %q", ErrInvalidState, step.Type))

		return "", false
	}
}

func (e *Engine) resolve(tx *txn, list []models.Approver) []string {
	recipients, err := approvers.ResolveAll(tx.ctx, e.resolver, list, tx.instance)
	if err != nil {
		tx.logger.WarnContext(tx.ctx, "failed to resolve approvers", "error", err)
	}

	return recipients
}

// requestApprovals sends one approval request per approver.
func (e *Engine) requestApprovals(tx *txn, step *models.WorkflowStep) {
	all := make([]string, 0)

	for _, approver := range step.Approvers {
		recipients := e.resolve(tx, []models.Approver{approver})
		all = append(all, recipients...)

		tx.box.notify(notification.Notification{
			Type:       notification.TypeApprovalRequest,
			Recipients: recipients,
			Subject:    "Approval Required: " + step.Name,
			Body:       fmt.Sprintf("Please review and approve %s %s", tx.instance.EntityType, tx.instance.EntityID),
			Priority:   notification.PriorityNormal,
			Metadata: map[string]any{
				"instanceId":   tx.instance.ID,
				"stepId":       step.ID,
				"workflowName": step.Name,
			},
		})
	}

	tx.box.record(e.auditEntry(models.SystemActor, audit.ActionApprovalRequest, tx.instance, map[string]any{
		"stepId":     step.ID,
		"recipients": all,
	}))
}

func (e *Engine) assignTasks(tx *txn, step *models.WorkflowStep) {
	for _, assignee := range e.resolve(tx, step.Approvers) {
		tx.box.tasks = append(tx.box.tasks, Task{
			InstanceID: tx.instance.ID,
			StepID:     step.ID,
			StepName:   step.Name,
			Assignee:   assignee,
			EntityID:   tx.instance.EntityID,
			EntityType: tx.instance.EntityType,
		})
	}
}

// sendStepNotifications sends one notification per notify action, or a single
// one when the step declares none. Params may override subject and body with
// templates over the instance.
func (e *Engine) sendStepNotifications(tx *txn, step *models.WorkflowStep) {
	actions := step.ActionsOf(models.ActionTypeNotify)
	if len(actions) == 0 {
		actions = []models.StepAction{{Type: models.ActionTypeNotify}}
	}

	data := template.Data(tx.instance, tx.chain, step)
	base := e.resolve(tx, step.Approvers)

	for _, action := range actions {
		recipients := base
		if action.Target != "" {
			recipients = append(append([]string(nil), base...), action.Target)
		}

		metadata := map[string]any{"instanceId": tx.instance.ID, "stepId": step.ID}
		maps.Copy(metadata, action.Params)

		subject := e.renderParam(tx, action.Params, "subject", "Workflow: "+step.Name, data)
		body := e.renderParam(tx, action.Params, "body",
			fmt.Sprintf("Step %s in workflow for %s %s", step.Name, tx.instance.EntityType, tx.instance.EntityID), data)

		tx.box.notify(notification.Notification{
			Type:       notification.TypeWorkflowUpdate,
			Recipients: recipients,
			Subject:    subject,
			Body:       body,
			Priority:   notification.PriorityNormal,
			Metadata:   metadata,
		})
	}
}

func (e *Engine) renderParam(tx *txn, params map[string]any, key, fallback string, data map[string]any) string {
	text, ok := params[key].(string)
	if !ok || text == "" {
		return fallback
	}

	rendered, err := template.RenderString(text, data)
	if err != nil {
		tx.logger.WarnContext(tx.ctx, "failed to render notification template", "param", key, "error", err)

		return fallback
	}

	return rendered
}

// runAutomation runs the update and execute actions of an automated step in
// order, merging their output into the instance metadata.
func (e *Engine) runAutomation(tx *txn, step *models.WorkflowStep) error {
	instance := tx.instance
	if instance.Metadata == nil {
		instance.Metadata = make(map[string]any)
	}

	for _, action := range step.Actions {
		switch action.Type {
		case models.ActionTypeUpdate:
			if e.updater != nil {
				if err := e.updater.UpdateEntity(tx.ctx, instance.EntityType, instance.EntityID, action.Params); err != nil {
					return fmt.Errorf("%w: update %s %s: %w", ErrAutomation, instance.EntityType, instance.EntityID, err)
				}
			}

			maps.Copy(instance.Metadata, action.Params)
		case models.ActionTypeExecute:
			act, err := e.registry.CreateAction(action.Target, action.Params)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrAutomation, err)
			}

			output, err := act.Execute(tx.ctx, registry.ActionContext{
				Instance: instance,
				Chain:    tx.chain,
				Step:     step,
			}, tx.logger.With("step_id", step.ID))
			if err != nil {
				return fmt.Errorf("%w: action %s: %w", ErrAutomation, action.Target, err)
			}

			maps.Copy(instance.Metadata, output.Metadata)
		}
	}

	return nil
}

// branch picks the target of the first branch whose conditions hold. Without
// branches the first next step is taken. When no branch matches the instance
// is approved.
func (e *Engine) branch(tx *txn, step *models.WorkflowStep) string {
	if len(step.Branches) == 0 {
		return successor(step)
	}

	evalCtx := policy.Context{Instance: tx.instance, Chain: tx.chain, ActorID: models.SystemActor, Now: e.now()}

	for _, b := range step.Branches {
		if policy.EvaluateAll(b.Conditions, evalCtx) {
			tx.logger.DebugContext(tx.ctx, "branch selected", "step_id", step.ID, "branch", b.Name, "target", b.Target)

			return b.Target
		}
	}

	tx.logger.WarnContext(tx.ctx, "no branch matched, approving instance", "step_id", step.ID)
	e.appendHistory(tx, step.ID, models.HistoryActionApproved, models.SystemActor, commentNoBranchMatched)
	e.finish(tx, models.InstanceStatusApproved)

	return ""
}

// fail ends the instance in error, recording the cause on the step.
func (e *Engine) fail(tx *txn, stepID string, err error) {
	tx.logger.ErrorContext(tx.ctx, "step failed", "step_id", stepID, "error", err)
	e.appendHistory(tx, stepID, models.HistoryActionRejected, models.SystemActor, err.Error())
	e.finish(tx, models.InstanceStatusError)
}

// finish moves the instance to a terminal status and disarms its timers.
func (e *Engine) finish(tx *txn, status models.InstanceStatus) {
	instance := tx.instance
	now := e.now()
	instance.Complete(status, now)
	e.disarmAll(tx)

	duration := now.Sub(instance.StartedAt)
	chainID := tx.chain.ID

	tx.box.publish(instance.ID, events.InstanceCompleted{
		BaseEvent: events.NewBaseEvent(events.InstanceCompletedEvent, instance.ID),
		ChainID:   chainID,
		Status:    status,
		Duration:  duration,
	})
	tx.box.observe = append(tx.box.observe, func(o Observer) { o.InstanceCompleted(chainID, status, duration) })

	tx.logger.InfoContext(tx.ctx, "workflow completed", "status", status, "duration", duration)
}
