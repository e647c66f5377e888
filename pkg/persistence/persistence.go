// Package persistence provides the storage abstraction for chains and instances.
package persistence

import (
	"context"

	"github.com/dukex/stockflow/pkg/models"
)

type Persistence interface {
	ChainRepository() ChainRepository
	InstanceRepository() InstanceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ChainRepository stores chain definitions. GetByID returns ErrChainNotFound
// for unknown ids.
type ChainRepository interface {
	GetAll(ctx context.Context) ([]*models.WorkflowChain, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowChain, error)
	Save(ctx context.Context, chain *models.WorkflowChain) error
	Delete(ctx context.Context, id string) error
}

// InstanceRepository stores workflow instances. GetByID returns
// ErrInstanceNotFound for unknown ids.
type InstanceRepository interface {
	List(ctx context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	Delete(ctx context.Context, id string) error
}

// InstanceFilter narrows List results. Zero fields match everything.
type InstanceFilter struct {
	ChainID  string
	EntityID string
	Status   models.InstanceStatus
}

func (f InstanceFilter) Matches(instance *models.WorkflowInstance) bool {
	switch {
	case f.ChainID != "" && instance.ChainID != f.ChainID:
		return false
	case f.EntityID != "" && instance.EntityID != f.EntityID:
		return false
	case f.Status != "" && instance.Status != f.Status:
		return false
	default:
		return true
	}
}
