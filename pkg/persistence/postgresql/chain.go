package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/persistence"
)

// ChainRepository stores chains as a JSONB definition plus indexed columns.
type ChainRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewChainRepository(db *sql.DB, logger *slog.Logger) *ChainRepository {
	return &ChainRepository{db: db, logger: logger}
}

func (r *ChainRepository) GetAll(ctx context.Context) ([]*models.WorkflowChain, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT definition FROM workflow_chains ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow chains: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	chains := make([]*models.WorkflowChain, 0)

	for rows.Next() {
		chain, err := scanChain(rows)
		if err != nil {
			return nil, err
		}

		chains = append(chains, chain)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow chains: %w", err)
	}

	return chains, nil
}

func (r *ChainRepository) GetByID(ctx context.Context, id string) (*models.WorkflowChain, error) {
	row := r.db.QueryRowContext(ctx, `SELECT definition FROM workflow_chains WHERE id = $1`, id)

	chain, err := scanChain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewChainError("GetByID", id, persistence.ErrChainNotFound)
	}

	if err != nil {
		return nil, persistence.NewChainError("GetByID", id, err)
	}

	return chain, nil
}

func (r *ChainRepository) Save(ctx context.Context, chain *models.WorkflowChain) error {
	now := time.Now().UTC()
	if chain.CreatedAt.IsZero() {
		chain.CreatedAt = now
	}

	if chain.UpdatedAt.IsZero() {
		chain.UpdatedAt = now
	}

	definition, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("failed to marshal chain %s: %w", chain.ID, err)
	}

	query := `
		INSERT INTO workflow_chains (id, name, status, workspace_id, created_by, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			workspace_id = EXCLUDED.workspace_id,
			created_by = EXCLUDED.created_by,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		chain.ID,
		chain.Name,
		chain.Status,
		chain.WorkspaceID,
		chain.CreatedBy,
		definition,
		chain.CreatedAt,
		chain.UpdatedAt,
	)
	if err != nil {
		return persistence.NewChainError("Save", chain.ID, err)
	}

	return nil
}

func (r *ChainRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workflow_chains WHERE id = $1`, id); err != nil {
		return persistence.NewChainError("Delete", id, err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChain(row scanner) (*models.WorkflowChain, error) {
	var definition []byte

	if err := row.Scan(&definition); err != nil {
		return nil, err
	}

	var chain models.WorkflowChain

	if err := json.Unmarshal(definition, &chain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chain definition: %w", err)
	}

	return &chain, nil
}
