package engine

import (
	"context"

	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/models"
)

// GovernanceReport is the governance view of an instance for one actor.
type GovernanceReport struct {
	InstanceID string          `json:"instance_id"`
	ActorID    string          `json:"actor_id"`
	Valid      bool            `json:"valid"`
	Violations []string        `json:"violations"`
	Policies   []PolicyOutcome `json:"policies"`
}

type PolicyOutcome struct {
	PolicyID  string                `json:"policy_id"`
	Name      string                `json:"name"`
	Compliant bool                  `json:"compliant"`
	Message   string                `json:"message,omitempty"`
	Actions   []models.PolicyAction `json:"actions,omitempty"`
}

// CheckGovernance validates an instance against the governance rules as if
// actorID were about to act on it. Nothing is recorded.
func (e *Engine) CheckGovernance(ctx context.Context, instanceID, actorID string) (*GovernanceReport, error) {
	instance, err := e.instances().GetByID(ctx, instanceID)
	if err != nil {
		return nil, newError("check_governance", instanceID, "", err)
	}

	chain, err := e.chains().GetByID(ctx, instance.ChainID)
	if err != nil {
		return nil, newError("check_governance", instanceID, "", err)
	}

	validator := e.governance
	if validator == nil {
		validator = governance.NewValidator(governance.DefaultConfig(), governance.WithClock(e.clock))
	}

	result := validator.ValidateInstance(instance, chain, actorID)

	report := &GovernanceReport{
		InstanceID: instance.ID,
		ActorID:    actorID,
		Valid:      result.Valid,
		Violations: result.Violations,
		Policies:   []PolicyOutcome{},
	}

	for _, evaluation := range validator.EvaluatePolicies(instance, chain, actorID) {
		report.Policies = append(report.Policies, PolicyOutcome{
			PolicyID:  evaluation.Policy.ID,
			Name:      evaluation.Policy.Name,
			Compliant: evaluation.Compliant,
			Message:   evaluation.Message,
			Actions:   evaluation.Actions,
		})
	}

	return report, nil
}
