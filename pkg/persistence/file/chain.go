package file

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/persistence"
)

// ChainRepository handles chain-related file operations.
type ChainRepository struct {
	root string
}

// GetAll returns every stored chain, oldest first.
func (r *ChainRepository) GetAll(_ context.Context) ([]*models.WorkflowChain, error) {
	chains, err := readAll[models.WorkflowChain](r.root, chainsDir)
	if err != nil {
		return nil, persistence.NewChainError("GetAll", "*", err)
	}

	slices.SortFunc(chains, func(a, b *models.WorkflowChain) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return chains, nil
}

func (r *ChainRepository) GetByID(_ context.Context, id string) (*models.WorkflowChain, error) {
	chain, err := readRecord[models.WorkflowChain](r.root, chainsDir, id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewChainError("GetByID", id, persistence.ErrChainNotFound)
	}

	if err != nil {
		return nil, persistence.NewChainError("GetByID", id, err)
	}

	return chain, nil
}

func (r *ChainRepository) Save(_ context.Context, chain *models.WorkflowChain) error {
	now := time.Now().UTC()
	if chain.CreatedAt.IsZero() {
		chain.CreatedAt = now
	}

	if chain.UpdatedAt.IsZero() {
		chain.UpdatedAt = now
	}

	if err := writeRecord(r.root, chainsDir, chain.ID, chain); err != nil {
		return persistence.NewChainError("Save", chain.ID, err)
	}

	return nil
}

func (r *ChainRepository) Delete(_ context.Context, id string) error {
	if err := deleteRecord(r.root, chainsDir, id); err != nil {
		return persistence.NewChainError("Delete", id, err)
	}

	return nil
}
