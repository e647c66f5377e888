// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/config"
	"github.com/dukex/stockflow/pkg/definition"
	"github.com/dukex/stockflow/pkg/engine"
	"github.com/dukex/stockflow/pkg/eventbus"
	"github.com/dukex/stockflow/pkg/events"
	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/metrics"
	"github.com/dukex/stockflow/pkg/notification"
	"github.com/dukex/stockflow/pkg/persistence"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

type EngineConfig struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Governance  config.Config
	Clock       clockwork.Clock
	Tracer      trace.Tracer
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// NewEngine wires the engine collaborators: notifications and audit entries
// go to the event bus, governance and approver membership come from the
// governance config.
func NewEngine(cfg EngineConfig) *engine.Engine {
	auditSink := audit.MultiSink{
		audit.NewLogSink(cfg.Logger),
		audit.NewEventBusSink(cfg.EventBus),
	}

	validator := cfg.Governance.Validator(
		governance.WithClock(cfg.Clock),
		governance.WithAuditSink(auditSink),
		governance.WithLogger(cfg.Logger),
	)

	opts := []engine.Option{
		engine.WithPersistence(cfg.Persistence),
		engine.WithClock(cfg.Clock),
		engine.WithGateway(notification.NewEventBusGateway(cfg.EventBus)),
		engine.WithAudit(auditSink),
		engine.WithResolver(cfg.Governance.Directory()),
		engine.WithGovernance(validator, cfg.Governance.Enforce),
		engine.WithRegistry(NewRegistry(cfg.Logger)),
		engine.WithPublisher(cfg.EventBus),
		engine.WithMaxEscalations(cfg.Governance.MaxEscalations),
		engine.WithLogger(cfg.Logger),
	}

	if cfg.Tracer != nil {
		opts = append(opts, engine.WithTracer(cfg.Tracer))
	}

	if cfg.Metrics != nil {
		opts = append(opts, engine.WithObserver(cfg.Metrics))
	}

	return engine.New(opts...)
}

// LoadDefinitions creates the chains defined in dir. Definitions whose id is
// already stored are skipped, so restarting against durable persistence
// does not duplicate chains.
func LoadDefinitions(ctx context.Context, e *engine.Engine, dir string, logger *slog.Logger) (int, error) {
	definitions, err := definition.LoadDir(dir)

	errs := []error{err}
	created := 0

	for _, def := range definitions {
		if def.ID != "" {
			if _, err := e.GetChain(ctx, def.ID); err == nil {
				logger.InfoContext(ctx, "Chain already present", "chain_id", def.ID, "source", def.Source)

				continue
			}
		}

		chain, err := e.CreateValidatedChain(ctx, def.Request())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", def.Source, err))

			continue
		}

		logger.InfoContext(ctx, "Chain loaded", "chain_id", chain.ID, "name", chain.Name, "source", def.Source)

		created++
	}

	return created, errors.Join(errs...)
}

// SubscribeEntityEvents starts workflows from entity.changed events on the bus.
// Events that start nothing or fail to start are logged and acknowledged.
func SubscribeEntityEvents(bus eventbus.EventSubscriber, e *engine.Engine, logger *slog.Logger) error {
	return bus.Handle(events.EntityChangedEvent, func(ctx context.Context, event any) error {
		changed, ok := event.(*events.EntityChanged)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		instances, err := e.HandleEntityEvent(ctx, changed.Entity)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to start workflows for entity event",
				"entity_id", changed.Entity.EntityID, "error", err)
		}

		logger.DebugContext(ctx, "Entity event consumed", "entity_id", changed.Entity.EntityID, "started", len(instances))

		return nil
	})
}
