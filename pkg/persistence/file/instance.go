package file

import (
	"context"
	"errors"
	"io/fs"
	"slices"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/persistence"
)

// InstanceRepository handles instance-related file operations.
type InstanceRepository struct {
	root string
}

// List loads every instance and filters in memory, oldest first.
func (r *InstanceRepository) List(_ context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	all, err := readAll[models.WorkflowInstance](r.root, instancesDir)
	if err != nil {
		return nil, persistence.NewInstanceError("List", "*", err)
	}

	instances := slices.DeleteFunc(all, func(instance *models.WorkflowInstance) bool {
		return !filter.Matches(instance)
	})

	slices.SortFunc(instances, func(a, b *models.WorkflowInstance) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	return instances, nil
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := readRecord[models.WorkflowInstance](r.root, instancesDir, id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return instance, nil
}

func (r *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	if err := writeRecord(r.root, instancesDir, instance.ID, instance); err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) Delete(_ context.Context, id string) error {
	if err := deleteRecord(r.root, instancesDir, id); err != nil {
		return persistence.NewInstanceError("Delete", id, err)
	}

	return nil
}
