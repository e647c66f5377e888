// Package file provides file-based persistence: one JSON document per record
// under <root>/chains and <root>/instances.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dukex/stockflow/pkg/persistence"
)

const (
	chainsDir    = "chains"
	instancesDir = "instances"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root      string
	chains    *ChainRepository
	instances *InstanceRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:      cleanRoot,
		chains:    &ChainRepository{root: cleanRoot},
		instances: &InstanceRepository{root: cleanRoot},
	}
}

func (fp *Persistence) ChainRepository() persistence.ChainRepository {
	return fp.chains
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instances
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func recordPath(root, dir, id string) string {
	return filepath.Clean(path.Join(root, dir, id+".json"))
}

// readRecord returns fs.ErrNotExist untouched so callers can map it to their
// not-found error.
func readRecord[T any](root, dir, id string) (*T, error) {
	body, err := os.ReadFile(recordPath(root, dir, id))
	if err != nil {
		return nil, err
	}

	var record T

	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return &record, nil
}

func writeRecord(root, dir, id string, record any) error {
	if err := os.MkdirAll(path.Join(root, dir), 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	return os.WriteFile(recordPath(root, dir, id), data, 0600)
}

func deleteRecord(root, dir, id string) error {
	err := os.Remove(recordPath(root, dir, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

func readAll[T any](root, dir string) ([]*T, error) {
	jsonFiles, err := fs.Glob(os.DirFS(path.Join(root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	records := make([]*T, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		record, err := readRecord[T](root, dir, strings.TrimSuffix(file, ".json"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}
