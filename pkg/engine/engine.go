// Package engine runs approval chains: it starts instances, dispatches steps,
// records decisions and drives step timeouts and escalations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/stockflow/pkg/approvers"
	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/eventbus"
	"github.com/dukex/stockflow/pkg/events"
	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/notification"
	"github.com/dukex/stockflow/pkg/otelhelper"
	"github.com/dukex/stockflow/pkg/persistence"
	"github.com/dukex/stockflow/pkg/persistence/memory"
	"github.com/dukex/stockflow/pkg/registry"
	"github.com/dukex/stockflow/pkg/scheduler"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxEscalations is how many times a step escalates before timing out
// when neither the rule nor the engine says otherwise.
const DefaultMaxEscalations = 1

type Engine struct {
	persistence persistence.Persistence
	clock       clockwork.Clock
	scheduler   scheduler.Scheduler
	timers      *scheduler.Timers
	gateway     notification.Gateway
	audit       audit.Sink
	resolver    approvers.Resolver
	governance  *governance.Validator
	enforce     bool
	registry    *registry.Registry
	updater     EntityUpdater
	tasks       TaskCreator
	observer    Observer
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger

	maxEscalations int

	locks sync.Map
}

// New builds an engine. Every collaborator has an in-process default, so
// New() alone gives a working engine backed by memory.
func New(opts ...Option) *Engine {
	e := &Engine{maxEscalations: DefaultMaxEscalations}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}

	e.logger = e.logger.With("module", "engine")

	if e.persistence == nil {
		e.persistence = memory.NewPersistence()
	}

	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}

	if e.scheduler == nil {
		e.scheduler = scheduler.New(e.clock)
	}

	if e.gateway == nil {
		e.gateway = notification.NewLogGateway(e.logger)
	}

	if e.audit == nil {
		e.audit = audit.NewLogSink(e.logger)
	}

	if e.resolver == nil {
		e.resolver = approvers.NewDirectory()
	}

	if e.registry == nil {
		e.registry = registry.NewDefaultRegistry(e.logger)
	}

	if e.tasks == nil {
		e.tasks = NewNotificationTaskCreator(e.gateway)
	}

	if e.observer == nil {
		e.observer = nopObserver{}
	}

	if e.publisher == nil {
		e.publisher = eventbus.NopPublisher{}
	}

	if e.tracer == nil {
		e.tracer = otelhelper.NoopTracer()
	}

	e.timers = scheduler.NewTimers(e.scheduler)

	return e
}

// Stop disarms every pending step timer.
func (e *Engine) Stop() {
	e.timers.Stop()
}

// HealthCheck reports whether the persistence backend is reachable.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.persistence.HealthCheck(ctx)
}

func (e *Engine) chains() persistence.ChainRepository {
	return e.persistence.ChainRepository()
}

func (e *Engine) instances() persistence.InstanceRepository {
	return e.persistence.InstanceRepository()
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

func (e *Engine) lock(instanceID string) func() {
	value, _ := e.locks.LoadOrStore(instanceID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

// CreateChainRequest describes a new chain. Status defaults to active and an
// empty ID is generated.
type CreateChainRequest struct {
	ID          string                    `json:"id,omitempty"`
	Name        string                    `json:"name"                   validate:"required"`
	Description string                    `json:"description,omitempty"`
	Steps       []*models.WorkflowStep    `json:"steps"                  validate:"dive"`
	Triggers    []*models.WorkflowTrigger `json:"triggers,omitempty"     validate:"dive"`
	Policies    []*models.WorkflowPolicy  `json:"policies,omitempty"`
	Status      models.ChainStatus        `json:"status,omitempty"       validate:"omitempty,oneof=active paused archived"`
	WorkspaceID string                    `json:"workspace_id,omitempty"`
	CreatedBy   string                    `json:"created_by,omitempty"`
}

func (r CreateChainRequest) chain(now time.Time) *models.WorkflowChain {
	status := r.Status
	if status == "" {
		status = models.ChainStatusActive
	}

	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}

	return &models.WorkflowChain{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Steps:       r.Steps,
		Triggers:    r.Triggers,
		Policies:    r.Policies,
		Status:      status,
		WorkspaceID: r.WorkspaceID,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CreateChain stores a new chain without validating it.
func (e *Engine) CreateChain(ctx context.Context, req CreateChainRequest) (*models.WorkflowChain, error) {
	return e.saveNewChain(ctx, req.chain(e.now()))
}

// CreateValidatedChain validates the chain with the governance limits (the
// defaults when the engine has no validator) before storing it.
func (e *Engine) CreateValidatedChain(ctx context.Context, req CreateChainRequest) (*models.WorkflowChain, error) {
	chain := req.chain(e.now())

	if result := e.validateChain(chain); !result.Valid {
		return nil, newError("create_chain", "", "", &governance.ValidationError{Violations: result.Violations})
	}

	return e.saveNewChain(ctx, chain)
}

// ValidateChain checks a chain definition without storing it.
func (e *Engine) ValidateChain(req CreateChainRequest) governance.Result {
	return e.validateChain(req.chain(e.now()))
}

func (e *Engine) validateChain(chain *models.WorkflowChain) governance.Result {
	if e.governance != nil {
		return e.governance.ValidateChain(chain)
	}

	return governance.NewChainValidator(governance.DefaultConfig()).Validate(chain)
}

func (e *Engine) saveNewChain(ctx context.Context, chain *models.WorkflowChain) (*models.WorkflowChain, error) {
	if err := e.chains().Save(ctx, chain); err != nil {
		return nil, newError("create_chain", "", "", err)
	}

	actor := chain.CreatedBy
	if actor == "" {
		actor = models.SystemActor
	}

	entry := audit.NewEntry(actor, audit.ActionPolicyCreate, audit.EntityTypeChain, chain.ID, map[string]any{
		"name":  chain.Name,
		"steps": len(chain.Steps),
	})
	entry.Timestamp = e.now()
	entry.WorkspaceID = chain.WorkspaceID

	e.flush(ctx, &outbox{audits: []audit.Entry{entry}})

	e.logger.InfoContext(ctx, "chain created", "chain_id", chain.ID, "name", chain.Name, "steps", len(chain.Steps))

	return chain, nil
}

func (e *Engine) GetChain(ctx context.Context, chainID string) (*models.WorkflowChain, error) {
	chain, err := e.chains().GetByID(ctx, chainID)
	if err != nil {
		return nil, newError("get_chain", "", "", err)
	}

	return chain, nil
}

func (e *Engine) ListChains(ctx context.Context) ([]*models.WorkflowChain, error) {
	chains, err := e.chains().GetAll(ctx)
	if err != nil {
		return nil, newError("list_chains", "", "", err)
	}

	return chains, nil
}

// SetChainStatus pauses, archives or resumes a chain. Running instances are
// not affected.
func (e *Engine) SetChainStatus(ctx context.Context, chainID string, status models.ChainStatus, actorID string) (*models.WorkflowChain, error) {
	switch status {
	case models.ChainStatusActive, models.ChainStatusPaused, models.ChainStatusArchived:
	default:
		return nil, newError("set_chain_status", "", "", fmt.Errorf("%w: unknown chain status %q", ErrInvalidState, status))
	}

	chain, err := e.chains().GetByID(ctx, chainID)
	if err != nil {
		return nil, newError("set_chain_status", "", "", err)
	}

	previous := chain.Status
	chain.Status = status
	chain.UpdatedAt = e.now()

	if err := e.chains().Save(ctx, chain); err != nil {
		return nil, newError("set_chain_status", "", "", err)
	}

	if actorID == "" {
		actorID = models.SystemActor
	}

	entry := audit.NewEntry(actorID, audit.ActionPolicyUpdate, audit.EntityTypeChain, chain.ID, map[string]any{
		"from": previous,
		"to":   status,
	})
	entry.Timestamp = e.now()

	e.flush(ctx, &outbox{audits: []audit.Entry{entry}})

	return chain, nil
}

func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	instance, err := e.instances().GetByID(ctx, instanceID)
	if err != nil {
		return nil, newError("get_instance", instanceID, "", err)
	}

	return instance, nil
}

func (e *Engine) ListInstances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	instances, err := e.instances().List(ctx, filter)
	if err != nil {
		return nil, newError("list_instances", "", "", err)
	}

	return instances, nil
}

// StartWorkflow creates an instance of an active chain and dispatches its
// first step. A chain without steps is approved at once.
func (e *Engine) StartWorkflow(
	ctx context.Context,
	chainID, entityID, entityType, initiator string,
	metadata map[string]any,
) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start_workflow",
		otelhelper.ChainIDKey.String(chainID),
		otelhelper.EntityIDKey.String(entityID),
		otelhelper.EntityTypeKey.String(entityType),
		otelhelper.ActorIDKey.String(initiator),
	)
	defer span.End()

	instance, err := e.startWorkflow(ctx, chainID, entityID, entityType, initiator, metadata)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		otelhelper.InstanceIDKey.String(instance.ID),
		otelhelper.InstanceStatusKey.String(string(instance.Status)),
	)

	return instance, nil
}

func (e *Engine) startWorkflow(
	ctx context.Context,
	chainID, entityID, entityType, initiator string,
	metadata map[string]any,
) (*models.WorkflowInstance, error) {
	chain, err := e.chains().GetByID(ctx, chainID)
	if err != nil {
		return nil, newError("start_workflow", "", "", err)
	}

	if !chain.IsActive() {
		return nil, newError("start_workflow", "", "", fmt.Errorf("%w: chain %s is %s", ErrInvalidState, chain.ID, chain.Status))
	}

	instance := &models.WorkflowInstance{
		ID:         uuid.New().String(),
		ChainID:    chain.ID,
		EntityID:   entityID,
		EntityType: entityType,
		Status:     models.InstanceStatusPending,
		History:    []models.HistoryEntry{},
		Metadata:   models.CloneMetadata(metadata),
		StartedAt:  e.now(),
	}

	if instance.Metadata == nil {
		instance.Metadata = make(map[string]any)
	}

	if _, ok := instance.Metadata[models.MetadataInitiatedBy]; !ok && initiator != "" {
		instance.Metadata[models.MetadataInitiatedBy] = initiator
	}

	unlock := e.lock(instance.ID)

	tx := e.newTxn(ctx, instance, chain)
	instance.Status = models.InstanceStatusInProgress

	tx.box.publish(instance.ID, events.InstanceStarted{
		BaseEvent:  events.NewBaseEvent(events.InstanceStartedEvent, instance.ID),
		ChainID:    chain.ID,
		EntityID:   entityID,
		EntityType: entityType,
		Initiator:  instance.Initiator(),
	})
	tx.box.observe = append(tx.box.observe, func(o Observer) { o.InstanceStarted(chain.ID) })
	tx.box.record(e.auditEntry(instance.Initiator(), audit.ActionEntityCreate, instance, map[string]any{
		"chainId":    chain.ID,
		"entityId":   entityID,
		"entityType": entityType,
	}))

	tx.logger.InfoContext(ctx, "workflow started", "entity_id", entityID)

	if first := chain.FirstStep(); first != nil {
		e.enter(tx, first.ID)
	} else {
		e.finish(tx, models.InstanceStatusApproved)
	}

	if err := e.instances().Save(ctx, instance); err != nil {
		unlock()

		return nil, newError("start_workflow", instance.ID, "", err)
	}

	e.applyTimers(tx)
	unlock()
	e.flush(ctx, &tx.box)

	return instance, nil
}

// errUnchanged aborts a mutation without saving and without failing the caller.
var errUnchanged = errors.New("instance unchanged")

// txn is one transition of one instance, run under the instance lock.
// Timer changes are queued and applied only once the instance is saved, so a
// failed save leaves the armed timers matching the stored state.
type txn struct {
	ctx      context.Context
	instance *models.WorkflowInstance
	chain    *models.WorkflowChain
	box      outbox
	timers   []timerOp
	logger   *slog.Logger
}

func (e *Engine) newTxn(ctx context.Context, instance *models.WorkflowInstance, chain *models.WorkflowChain) *txn {
	return &txn{
		ctx:      ctx,
		instance: instance,
		chain:    chain,
		logger:   e.logger.With("instance_id", instance.ID, "chain_id", chain.ID),
	}
}

// mutate loads an instance under its lock, applies fn, saves the result,
// applies the queued timer changes and then delivers the side effects fn queued.
func (e *Engine) mutate(
	ctx context.Context,
	op, instanceID, stepID string,
	fn func(tx *txn) error,
) (*models.WorkflowInstance, error) {
	unlock := e.lock(instanceID)

	instance, err := e.instances().GetByID(ctx, instanceID)
	if err != nil {
		unlock()

		return nil, newError(op, instanceID, stepID, err)
	}

	chain, err := e.chains().GetByID(ctx, instance.ChainID)
	if err != nil {
		unlock()

		return nil, newError(op, instanceID, stepID, err)
	}

	tx := e.newTxn(ctx, instance, chain)

	if err := fn(tx); err != nil {
		unlock()

		if errors.Is(err, errUnchanged) {
			return instance, nil
		}

		return nil, newError(op, instanceID, stepID, err)
	}

	if err := e.instances().Save(ctx, instance); err != nil {
		unlock()

		return nil, newError(op, instanceID, stepID, err)
	}

	e.applyTimers(tx)
	unlock()
	e.flush(ctx, &tx.box)

	return instance, nil
}

func (e *Engine) auditEntry(actorID string, action audit.Action, instance *models.WorkflowInstance, details map[string]any) audit.Entry {
	if actorID == "" {
		actorID = models.SystemActor
	}

	entry := audit.NewEntry(actorID, action, audit.EntityTypeInstance, instance.ID, details)
	entry.Timestamp = e.now()

	return entry
}

// HandleEntityEvent starts an instance of every active chain with a trigger
// matching the event. Each chain starts at most once per event.
func (e *Engine) HandleEntityEvent(ctx context.Context, event models.EntityEvent) ([]*models.WorkflowInstance, error) {
	chains, err := e.chains().GetAll(ctx)
	if err != nil {
		return nil, newError("handle_entity_event", "", "", err)
	}

	initiator := event.ActorID
	if initiator == "" {
		initiator = models.SystemActor
	}

	var (
		started []*models.WorkflowInstance
		errs    []error
	)

	for _, chain := range chains {
		if !chain.IsActive() || !matchesAny(chain.Triggers, event) {
			continue
		}

		instance, err := e.StartWorkflow(ctx, chain.ID, event.EntityID, event.EntityType, initiator, event.Data)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		started = append(started, instance)
	}

	e.logger.DebugContext(ctx, "entity event handled",
		"type", event.Type, "entity_type", event.EntityType, "entity_id", event.EntityID, "started", len(started))

	return started, errors.Join(errs...)
}

func matchesAny(triggers []*models.WorkflowTrigger, event models.EntityEvent) bool {
	for _, trigger := range triggers {
		if trigger.Matches(event) {
			return true
		}
	}

	return false
}

// ScheduleTriggers returns the schedule triggers of active chains keyed by chain id.
func (e *Engine) ScheduleTriggers(ctx context.Context) (map[string][]*models.WorkflowTrigger, error) {
	chains, err := e.chains().GetAll(ctx)
	if err != nil {
		return nil, newError("schedule_triggers", "", "", err)
	}

	result := make(map[string][]*models.WorkflowTrigger)

	for _, chain := range chains {
		if !chain.IsActive() {
			continue
		}

		for _, trigger := range chain.Triggers {
			if trigger.Type == models.TriggerTypeSchedule && strings.TrimSpace(trigger.Schedule) != "" {
				result[chain.ID] = append(result[chain.ID], trigger)
			}
		}
	}

	return result, nil
}
