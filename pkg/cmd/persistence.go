package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stockflow/pkg/persistence"
	"github.com/dukex/stockflow/pkg/persistence/file"
	"github.com/dukex/stockflow/pkg/persistence/memory"
	"github.com/dukex/stockflow/pkg/persistence/postgresql"
)

// NewPersistence picks the backend from the database URL scheme:
// memory://, file://<dir>, postgres:// or postgresql://. A URL without a
// scheme is a file persistence directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch provider, path := parsePersistenceProvider(databaseURL); provider {
	case "memory":
		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgresql persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(path), nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	if databaseURL == "" {
		return "memory", ""
	}

	provider, path, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, path
}
