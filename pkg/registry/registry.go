// Package registry holds the factories for the actions automated steps execute.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrActionNotRegistered = errors.New("action type not registered")

// ActionContext is what an action sees of the workflow it runs in.
type ActionContext struct {
	Instance *models.WorkflowInstance
	Chain    *models.WorkflowChain
	Step     *models.WorkflowStep
}

// Output is what an action hands back to the engine. Metadata is merged into
// the instance metadata.
type Output struct {
	Metadata map[string]any
}

type Action interface {
	Execute(ctx context.Context, actionCtx ActionContext, logger *slog.Logger) (Output, error)
}

type ActionFactory interface {
	// ID is the value a step action's target uses to select this factory.
	ID() string
	Name() string
	Description() string
	// Schema is the JSON schema the action params are checked against.
	Schema() map[string]any
	Create(config map[string]any) (Action, error)
}

type Registry struct {
	logger *slog.Logger

	mu              sync.RWMutex
	actionFactories map[string]ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log.With("module", "registry"),
		actionFactories: make(map[string]ActionFactory),
	}
}

// NewDefaultRegistry returns a registry with the built-in actions registered.
func NewDefaultRegistry(log *slog.Logger) *Registry {
	reg := NewRegistry(log)
	reg.RegisterAction(NewLogActionFactory())
	reg.RegisterAction(NewSetMetadataActionFactory())

	return reg
}

func (r *Registry) RegisterAction(actionFactory ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
	r.logger.Debug("action registered", "action_type", actionFactory.ID())
}

// CreateAction validates config against the factory schema and builds the action.
func (r *Registry) CreateAction(actionType string, config map[string]any) (Action, error) {
	r.mu.RLock()
	factory, ok := r.actionFactories[actionType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrActionNotRegistered, actionType)
	}

	if config == nil {
		config = map[string]any{}
	}

	if schema := factory.Schema(); schema != nil {
		if err := validateConfig(config, schema); err != nil {
			return nil, fmt.Errorf("invalid config for action '%s': %w", actionType, err)
		}
	}

	return factory.Create(config)
}

// Actions returns the registered factories ordered by id.
func (r *Registry) Actions() []ActionFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]ActionFactory, 0, len(r.actionFactories))
	for _, factory := range r.actionFactories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b ActionFactory) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return factories
}

func validateConfig(config map[string]any, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
