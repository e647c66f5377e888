// Package models defines the core domain models for approval chain orchestration
package models

import "time"

// ChainStatus represents the lifecycle state of a workflow chain.
type ChainStatus string

const (
	ChainStatusActive   ChainStatus = "active"   // Accepts new instances
	ChainStatusPaused   ChainStatus = "paused"   // Running instances continue, no new ones
	ChainStatusArchived ChainStatus = "archived" // Historical
)

// WorkflowChain is a named, ordered set of steps forming a directed graph via NextSteps.
// The first step is the entry point.
type WorkflowChain struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"                   validate:"required"`
	Description string             `json:"description,omitempty"`
	Steps       []*WorkflowStep    `json:"steps"                  validate:"dive"`
	Triggers    []*WorkflowTrigger `json:"triggers,omitempty"     validate:"dive"`
	Policies    []*WorkflowPolicy  `json:"policies,omitempty"`
	Status      ChainStatus        `json:"status"                 validate:"omitempty,oneof=active paused archived"`
	WorkspaceID string             `json:"workspace_id,omitempty"`
	CreatedBy   string             `json:"created_by,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Step returns the step with the given id, or nil.
func (c *WorkflowChain) Step(id string) *WorkflowStep {
	for _, step := range c.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// FirstStep returns the entry step of the chain, or nil for an empty chain.
func (c *WorkflowChain) FirstStep() *WorkflowStep {
	if len(c.Steps) == 0 {
		return nil
	}

	return c.Steps[0]
}

func (c *WorkflowChain) IsActive() bool {
	return c.Status == ChainStatusActive
}

// Clone returns a copy safe to mutate at the chain level. Steps are shared since
// they never change after creation.
func (c *WorkflowChain) Clone() *WorkflowChain {
	clone := *c
	clone.Steps = append([]*WorkflowStep(nil), c.Steps...)
	clone.Triggers = append([]*WorkflowTrigger(nil), c.Triggers...)
	clone.Policies = append([]*WorkflowPolicy(nil), c.Policies...)

	return &clone
}
