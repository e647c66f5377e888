// Package postgresql stores chains and instances in PostgreSQL. Chain
// definitions, history and metadata are JSONB columns.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stockflow/pkg/persistence"
	"github.com/dukex/stockflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

const (
	maxOpenConns    = 20
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

type Persistence struct {
	db        *sql.DB
	logger    *slog.Logger
	chains    *ChainRepository
	instances *InstanceRepository
}

// NewPersistence opens the pool, checks the server answers and migrates the
// schema before returning.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	logger = logger.With("module", "postgresql")

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to ping postgres: %w", err), db.Close())
	}

	if _, err := sqlbase.NewMigrator(logger, db, migrations).Up(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to migrate schema: %w", err), db.Close())
	}

	return &Persistence{
		db:        db,
		logger:    logger,
		chains:    NewChainRepository(db, logger),
		instances: NewInstanceRepository(db, logger),
	}, nil
}

func (p *Persistence) ChainRepository() persistence.ChainRepository {
	return p.chains
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instances
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
