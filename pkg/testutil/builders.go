// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/google/uuid"
)

// NewChain creates an active chain holding steps as given; steps are not linked.
func NewChain(steps ...*models.WorkflowStep) *models.WorkflowChain {
	now := time.Now().UTC()

	return &models.WorkflowChain{
		ID:          uuid.New().String(),
		Name:        "Test Chain",
		Steps:       steps,
		Status:      models.ChainStatusActive,
		WorkspaceID: "ws-test",
		CreatedBy:   "test-user",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// LinearChain creates step-1 -> step-2 -> ... -> step-n, each approved by u<i>.
func LinearChain(n int) *models.WorkflowChain {
	steps := make([]*models.WorkflowStep, n)

	for i := range n {
		steps[i] = ApprovalStep(fmt.Sprintf("step-%d", i+1), fmt.Sprintf("u%d", i+1))
		if i+1 < n {
			steps[i].NextSteps = []string{fmt.Sprintf("step-%d", i+2)}
		}
	}

	return NewChain(steps...)
}

// ApprovalStep creates a sequential approval step approved by the given users.
func ApprovalStep(id string, users ...string) *models.WorkflowStep {
	approvers := make([]models.Approver, len(users))
	for i, user := range users {
		approvers[i] = models.Approver{Type: models.ApproverTypeUser, Value: user}
	}

	return &models.WorkflowStep{
		ID:        id,
		Name:      "Step " + id,
		Type:      models.StepTypeApproval,
		Mode:      models.StepModeSequential,
		Approvers: approvers,
	}
}

// ParallelStep creates an approval step that needs every user.
func ParallelStep(id string, users ...string) *models.WorkflowStep {
	step := ApprovalStep(id, users...)
	step.Mode = models.StepModeParallel

	return step
}

func ConditionalStep(id string, branches ...models.Branch) *models.WorkflowStep {
	return &models.WorkflowStep{
		ID:       id,
		Name:     "Step " + id,
		Type:     models.StepTypeConditional,
		Branches: branches,
	}
}

// Branch creates a single-condition branch over instance metadata.
func Branch(name, target, field string, operator models.ConditionOperator, value any) models.Branch {
	return models.Branch{
		Name:   name,
		Target: target,
		Conditions: []models.WorkflowCondition{{
			Field:      field,
			Operator:   operator,
			Value:      value,
			DataSource: models.DataSourceMetadata,
		}},
	}
}

// CreateTestInstance creates an in-progress instance with default values that can be overridden.
func CreateTestInstance(overrides ...func(*models.WorkflowInstance)) *models.WorkflowInstance {
	instance := &models.WorkflowInstance{
		ID:         uuid.New().String(),
		ChainID:    uuid.New().String(),
		EntityID:   "po-1",
		EntityType: "purchase_order",
		Status:     models.InstanceStatusInProgress,
		History:    []models.HistoryEntry{},
		Metadata: map[string]any{
			models.MetadataInitiatedBy:   "initiator",
			models.MetadataJustification: "restock before peak season",
		},
		StartedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(instance)
	}

	return instance
}

// WithMetadata merges values into the instance metadata.
func WithMetadata(values map[string]any) func(*models.WorkflowInstance) {
	return func(i *models.WorkflowInstance) {
		for k, v := range values {
			i.Metadata[k] = v
		}
	}
}

func WithCurrentStep(stepID string) func(*models.WorkflowInstance) {
	return func(i *models.WorkflowInstance) {
		i.CurrentStep = stepID
	}
}

func WithChain(chain *models.WorkflowChain) func(*models.WorkflowInstance) {
	return func(i *models.WorkflowInstance) {
		i.ChainID = chain.ID
	}
}
