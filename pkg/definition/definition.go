// Package definition loads workflow chain definitions from YAML or JSON files.
package definition

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dukex/stockflow/pkg/engine"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/chain.json
var chainSchema []byte

var ErrInvalidDefinition = errors.New("invalid chain definition")

// SchemaError lists the schema and field violations of a definition.
type SchemaError struct {
	Source string
	Errors []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%v %s: %s", ErrInvalidDefinition, e.Source, strings.Join(e.Errors, "; "))
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

// Definition is a chain as written in a definition file. An empty ID gets a
// generated one when the chain is created.
type Definition struct {
	ID          string                    `json:"id,omitempty"`
	Name        string                    `json:"name"                   validate:"required"`
	Description string                    `json:"description,omitempty"`
	Status      models.ChainStatus        `json:"status,omitempty"       validate:"omitempty,oneof=active paused archived"`
	WorkspaceID string                    `json:"workspace_id,omitempty"`
	CreatedBy   string                    `json:"created_by,omitempty"`
	Steps       []*models.WorkflowStep    `json:"steps"                  validate:"dive"`
	Triggers    []*models.WorkflowTrigger `json:"triggers,omitempty"     validate:"dive"`
	Policies    []*models.WorkflowPolicy  `json:"policies,omitempty"`

	// Source is the file the definition was read from, if any.
	Source string `json:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse reads a YAML or JSON definition, checks it against the chain schema
// and the model validation tags.
func Parse(data []byte, source string) (*Definition, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDefinition, source, err)
	}

	if raw == nil {
		return nil, &SchemaError{Source: source, Errors: []string{"definition is empty"}}
	}

	if err := validateSchema(raw, source); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDefinition, source, err)
	}

	var def Definition
	if err := json.Unmarshal(encoded, &def); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDefinition, source, err)
	}

	if err := validate.Struct(&def); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			messages := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				messages = append(messages, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}

			return nil, &SchemaError{Source: source, Errors: messages}
		}

		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDefinition, source, err)
	}

	def.Source = source

	return &def, nil
}

func validateSchema(raw map[string]any, source string) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(chainSchema), gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidDefinition, source, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return &SchemaError{Source: source, Errors: messages}
}

func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	return Parse(data, path)
}

// LoadDir loads every .yaml, .yml and .json file of dir in name order.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, entry.Name())
		}
	}

	slices.Sort(names)

	definitions := make([]*Definition, 0, len(names))

	var errs []error

	for _, name := range names {
		def, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)

			continue
		}

		definitions = append(definitions, def)
	}

	return definitions, errors.Join(errs...)
}

// Chain returns the definition as an unsaved chain, e.g. for validation.
func (d *Definition) Chain() *models.WorkflowChain {
	status := d.Status
	if status == "" {
		status = models.ChainStatusActive
	}

	return &models.WorkflowChain{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Steps:       d.Steps,
		Triggers:    d.Triggers,
		Policies:    d.Policies,
		Status:      status,
		WorkspaceID: d.WorkspaceID,
		CreatedBy:   d.CreatedBy,
	}
}

func (d *Definition) Request() engine.CreateChainRequest {
	return engine.CreateChainRequest{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Steps:       d.Steps,
		Triggers:    d.Triggers,
		Policies:    d.Policies,
		Status:      d.Status,
		WorkspaceID: d.WorkspaceID,
		CreatedBy:   d.CreatedBy,
	}
}
