// Package memory provides an in-process persistence implementation.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/persistence"
)

// Persistence keeps records in maps. Records are copied on the way in and out.
type Persistence struct {
	chains    *ChainRepository
	instances *InstanceRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		chains:    &ChainRepository{chains: make(map[string]*models.WorkflowChain)},
		instances: &InstanceRepository{instances: make(map[string]*models.WorkflowInstance)},
	}
}

func (p *Persistence) ChainRepository() persistence.ChainRepository {
	return p.chains
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instances
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

type ChainRepository struct {
	mu     sync.RWMutex
	chains map[string]*models.WorkflowChain
}

func (r *ChainRepository) GetAll(_ context.Context) ([]*models.WorkflowChain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chains := make([]*models.WorkflowChain, 0, len(r.chains))
	for _, chain := range r.chains {
		chains = append(chains, chain.Clone())
	}

	slices.SortFunc(chains, func(a, b *models.WorkflowChain) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return chains, nil
}

func (r *ChainRepository) GetByID(_ context.Context, id string) (*models.WorkflowChain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain, ok := r.chains[id]
	if !ok {
		return nil, persistence.NewChainError("GetByID", id, persistence.ErrChainNotFound)
	}

	return chain.Clone(), nil
}

func (r *ChainRepository) Save(_ context.Context, chain *models.WorkflowChain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chains[chain.ID] = chain.Clone()

	return nil
}

func (r *ChainRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.chains, id)

	return nil
}

type InstanceRepository struct {
	mu        sync.RWMutex
	instances map[string]*models.WorkflowInstance
}

func (r *InstanceRepository) List(_ context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*models.WorkflowInstance, 0)

	for _, instance := range r.instances {
		if filter.Matches(instance) {
			instances = append(instances, instance.Clone())
		}
	}

	slices.SortFunc(instances, func(a, b *models.WorkflowInstance) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	return instances, nil
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.instances[id]
	if !ok {
		return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	return instance.Clone(), nil
}

func (r *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.instances[instance.ID] = instance.Clone()

	return nil
}

func (r *InstanceRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.instances, id)

	return nil
}
