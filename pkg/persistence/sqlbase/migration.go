// Package sqlbase holds what the SQL backends share: versioned schema migrations.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
)

// Migration is one forward-only schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies pending migrations in version order, one transaction each.
type Migrator struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations []Migration
}

func NewMigrator(logger *slog.Logger, db *sql.DB, migrations []Migration) *Migrator {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return a.Version - b.Version })

	return &Migrator{db: db, logger: logger, migrations: sorted}
}

// Up brings the schema to the latest version and returns how many
// migrations it applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`

	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	current, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0

	for _, migration := range m.migrations {
		if migration.Version <= current {
			continue
		}

		if err := m.apply(ctx, migration); err != nil {
			return applied, err
		}

		applied++
	}

	m.logger.InfoContext(ctx, "schema up to date", "from_version", current, "applied", applied)

	return applied, nil
}

// Version returns the highest applied migration, 0 on a fresh database.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	var version int

	if err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}

	return version, nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", migration.Version, migration.Name); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("migration %d (%s): failed to record: %w", migration.Version, migration.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d (%s): failed to commit: %w", migration.Version, migration.Name, err)
	}

	m.logger.InfoContext(ctx, "migration applied", "version", migration.Version, "name", migration.Name)

	return nil
}
