package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/policy"
	"github.com/jonboulle/clockwork"
)

const (
	violationDuration      = "Instance exceeds maximum duration"
	violationSegregation   = "Initiator cannot approve their own request"
	violationJustification = "Business justification is required"
)

// Validator checks chains and running instances against the governance config
// and the registered policies. Validation never mutates its inputs.
type Validator struct {
	config Config
	chains *ChainValidator
	clock  clockwork.Clock
	audit  audit.Sink
	logger *slog.Logger

	mu       sync.RWMutex
	policies map[string]*models.WorkflowPolicy
}

type Option func(*Validator)

func WithClock(clock clockwork.Clock) Option {
	return func(v *Validator) { v.clock = clock }
}

func WithAuditSink(sink audit.Sink) Option {
	return func(v *Validator) { v.audit = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithPolicies registers policies at construction, e.g. DefaultPolicies().
func WithPolicies(policies ...*models.WorkflowPolicy) Option {
	return func(v *Validator) {
		for _, p := range policies {
			v.policies[p.ID] = p
		}
	}
}

func NewValidator(config Config, opts ...Option) *Validator {
	v := &Validator{
		config:   config,
		chains:   NewChainValidator(config),
		clock:    clockwork.NewRealClock(),
		audit:    audit.NewMemorySink(),
		logger:   slog.Default(),
		policies: make(map[string]*models.WorkflowPolicy),
	}

	for _, opt := range opts {
		opt(v)
	}

	v.logger = v.logger.With("module", "governance")

	return v
}

func (v *Validator) Config() Config {
	return v.config
}

func (v *Validator) ValidateChain(chain *models.WorkflowChain) Result {
	return v.chains.Validate(chain)
}

// ValidateInstance checks whether actorID may act on the instance's current step.
func (v *Validator) ValidateInstance(instance *models.WorkflowInstance, chain *models.WorkflowChain, actorID string) Result {
	violations := make([]string, 0)

	if v.config.MaxInstanceDuration > 0 && v.clock.Since(instance.StartedAt) > v.config.MaxInstanceDuration.Std() {
		violations = append(violations, violationDuration)
	}

	if v.config.EnforceSegregationOfDuties && instance.Initiator() != "" && instance.Initiator() == actorID {
		if step := chain.Step(instance.CurrentStep); step != nil && step.Type == models.StepTypeApproval {
			violations = append(violations, violationSegregation)
		}
	}

	if v.config.RequireBusinessJustification && !hasJustification(instance) {
		violations = append(violations, violationJustification)
	}

	for _, evaluation := range v.EvaluatePolicies(instance, chain, actorID) {
		if !evaluation.Compliant {
			violations = append(violations, evaluation.Message)
		}
	}

	return newResult(violations)
}

func hasJustification(instance *models.WorkflowInstance) bool {
	value, ok := instance.Metadata[models.MetadataJustification]
	if !ok || value == nil {
		return false
	}

	if s, isString := value.(string); isString {
		return strings.TrimSpace(s) != ""
	}

	return true
}

// Evaluation is the outcome of one policy whose conditions all held.
type Evaluation struct {
	Policy    *models.WorkflowPolicy
	Compliant bool
	Message   string
	Actions   []models.PolicyAction
}

// EvaluatePolicies returns, in priority order, every enabled and applicable policy
// (registered or attached to the chain) whose conditions hold. A policy is
// non-compliant when its first rule denies.
func (v *Validator) EvaluatePolicies(instance *models.WorkflowInstance, chain *models.WorkflowChain, actorID string) []Evaluation {
	evalCtx := policy.Context{Instance: instance, Chain: chain, ActorID: actorID, Now: v.clock.Now()}
	evaluations := make([]Evaluation, 0)

	for _, p := range v.applicable(instance, chain) {
		if !policy.EvaluateAll(p.Conditions, evalCtx) {
			continue
		}

		evaluation := Evaluation{Policy: p, Compliant: true, Actions: p.Actions}

		if len(p.Rules) > 0 && p.Rules[0].Action == models.RuleActionDeny {
			evaluation.Compliant = false
			evaluation.Message = p.Rules[0].Message

			if evaluation.Message == "" {
				evaluation.Message = fmt.Sprintf("Policy %s violated", p.Name)
			}
		}

		evaluations = append(evaluations, evaluation)
	}

	return evaluations
}

func (v *Validator) applicable(instance *models.WorkflowInstance, chain *models.WorkflowChain) []*models.WorkflowPolicy {
	candidates := v.Policies()
	candidates = append(candidates, chain.Policies...)

	slices.SortStableFunc(candidates, func(a, b *models.WorkflowPolicy) int {
		return a.Priority - b.Priority
	})

	result := make([]*models.WorkflowPolicy, 0, len(candidates))

	for _, p := range candidates {
		if !p.Enabled {
			continue
		}

		if p.WorkflowID != "" && p.WorkflowID != chain.ID {
			continue
		}

		if p.StepID != "" && p.StepID != instance.CurrentStep {
			continue
		}

		result = append(result, p)
	}

	return result
}

// ApplyPolicyActions records one audit entry per action. Notify and unknown
// actions are skipped.
func (v *Validator) ApplyPolicyActions(ctx context.Context, actions []models.PolicyAction, instance *models.WorkflowInstance, actorID string) error {
	var errs []error

	for _, action := range actions {
		var (
			auditAction audit.Action
			details     map[string]any
		)

		switch action.Type {
		case models.PolicyActionApprove:
			auditAction = audit.ActionApprovalDecision
			details = map[string]any{"decision": "approved", "reason": "Policy auto-approval", "policyParams": action.Params}
		case models.PolicyActionReject:
			auditAction = audit.ActionApprovalDecision
			details = map[string]any{"decision": "rejected", "reason": paramOr(action.Params, "reason", "Policy rejection")}
		case models.PolicyActionEscalate:
			escalatedTo := action.Params["role"]
			if escalatedTo == nil {
				escalatedTo = action.Params["user"]
			}

			auditAction = audit.ActionApprovalRequest
			details = map[string]any{"escalatedTo": escalatedTo, "reason": action.Params["reason"]}
		case models.PolicyActionModify:
			auditAction = audit.ActionEntityUpdate
			details = map[string]any{"modifications": action.Params}
		case models.PolicyActionBranch:
			auditAction = audit.ActionEntityUpdate
			details = map[string]any{"branched": true, "branchTo": action.Params["stepId"]}
		default:
			continue
		}

		entry := audit.NewEntry(actorID, auditAction, audit.EntityTypeInstance, instance.ID, details)
		entry.Timestamp = v.clock.Now().UTC()

		if err := v.audit.Log(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("failed to audit %s action: %w", action.Type, err))
		}
	}

	return errors.Join(errs...)
}

func paramOr(params map[string]any, key string, fallback any) any {
	if value, ok := params[key]; ok && value != nil {
		return value
	}

	return fallback
}

// AddPolicy registers or replaces a policy by id.
func (v *Validator) AddPolicy(p *models.WorkflowPolicy) error {
	if p == nil || p.ID == "" {
		return errors.New("policy id is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.policies[p.ID] = p
	v.logger.Debug("policy registered", "policy_id", p.ID, "enabled", p.Enabled)

	return nil
}

func (v *Validator) RemovePolicy(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok := v.policies[id]
	delete(v.policies, id)

	return ok
}

// Policies returns the registered policies ordered by priority, then id.
func (v *Validator) Policies() []*models.WorkflowPolicy {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]*models.WorkflowPolicy, 0, len(v.policies))
	for _, p := range v.policies {
		result = append(result, p)
	}

	slices.SortFunc(result, func(a, b *models.WorkflowPolicy) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}

		return strings.Compare(a.ID, b.ID)
	})

	return result
}

type Metrics struct {
	TotalPolicies  int `json:"total_policies"`
	ActivePolicies int `json:"active_policies"`
}

func (v *Validator) Metrics() Metrics {
	policies := v.Policies()
	metrics := Metrics{TotalPolicies: len(policies)}

	for _, p := range policies {
		if p.Enabled {
			metrics.ActivePolicies++
		}
	}

	return metrics
}
