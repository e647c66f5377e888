package engine

import (
	"log/slog"

	"github.com/dukex/stockflow/pkg/approvers"
	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/eventbus"
	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/notification"
	"github.com/dukex/stockflow/pkg/persistence"
	"github.com/dukex/stockflow/pkg/registry"
	"github.com/dukex/stockflow/pkg/scheduler"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

type Option func(*Engine)

func WithPersistence(p persistence.Persistence) Option {
	return func(e *Engine) { e.persistence = p }
}

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithScheduler replaces the clock-driven scheduler used for step timeouts.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

func WithGateway(gateway notification.Gateway) Option {
	return func(e *Engine) { e.gateway = gateway }
}

func WithAudit(sink audit.Sink) Option {
	return func(e *Engine) { e.audit = sink }
}

func WithResolver(resolver approvers.Resolver) Option {
	return func(e *Engine) { e.resolver = resolver }
}

// WithGovernance makes approvals consult the validator. With enforce set, an
// approval that fails validation is refused; otherwise it is logged and audited.
func WithGovernance(validator *governance.Validator, enforce bool) Option {
	return func(e *Engine) {
		e.governance = validator
		e.enforce = enforce
	}
}

func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

func WithEntityUpdater(updater EntityUpdater) Option {
	return func(e *Engine) { e.updater = updater }
}

func WithTaskCreator(creator TaskCreator) Option {
	return func(e *Engine) { e.tasks = creator }
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) { e.observer = observer }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMaxEscalations sets how many times a step escalates before it times out
// when its escalation rule does not say. Values below zero are ignored.
func WithMaxEscalations(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxEscalations = n
		}
	}
}
