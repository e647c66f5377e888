package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/persistence"
)

const instanceColumns = `id, chain_id, entity_id, entity_type, status, current_step, history, metadata, started_at, completed_at`

type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

func (r *InstanceRepository) List(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	var (
		where []string
		args  []any
	)

	add := func(column, value string) {
		if value == "" {
			return
		}

		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("chain_id", filter.ChainID)
	add("entity_id", filter.EntityID)
	add("status", string(filter.Status))

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	query += ` ORDER BY started_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instances: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM workflow_instances WHERE id = $1`, id)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return instance, nil
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	history, err := json.Marshal(instance.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	metadata, err := json.Marshal(instance.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			history = EXCLUDED.history,
			metadata = EXCLUDED.metadata,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.ChainID,
		instance.EntityID,
		instance.EntityType,
		instance.Status,
		instance.CurrentStep,
		history,
		metadata,
		instance.StartedAt,
		instance.CompletedAt,
	)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workflow_instances WHERE id = $1`, id); err != nil {
		return persistence.NewInstanceError("Delete", id, err)
	}

	return nil
}

func scanInstance(row scanner) (*models.WorkflowInstance, error) {
	var (
		instance    models.WorkflowInstance
		currentStep sql.NullString
		history     []byte
		metadata    []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&instance.ChainID,
		&instance.EntityID,
		&instance.EntityType,
		&instance.Status,
		&currentStep,
		&history,
		&metadata,
		&instance.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.CurrentStep = currentStep.String

	if err := json.Unmarshal(history, &instance.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &instance.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if completedAt.Valid {
		at := completedAt.Time.UTC()
		instance.CompletedAt = &at
	}

	instance.StartedAt = instance.StartedAt.UTC()

	return &instance, nil
}
