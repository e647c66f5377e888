package governance_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T, opts ...governance.Option) (*governance.Validator, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	opts = append([]governance.Option{governance.WithClock(clock)}, opts...)

	return governance.NewValidator(governance.DefaultConfig(), opts...), clock
}

func TestValidateInstance_Compliant(t *testing.T) {
	validator, clock := newValidator(t)
	chain := testutil.LinearChain(2)
	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("step-1"), func(i *models.WorkflowInstance) {
		i.StartedAt = clock.Now()
	})

	result := validator.ValidateInstance(instance, chain, "u1")

	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)
}

func TestValidateInstance_SegregationOfDuties(t *testing.T) {
	validator, clock := newValidator(t)
	chain := testutil.LinearChain(1)
	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("step-1"), func(i *models.WorkflowInstance) {
		i.StartedAt = clock.Now()
	})

	result := validator.ValidateInstance(instance, chain, "initiator")

	assert.False(t, result.Valid)
	assert.Equal(t, []string{"Initiator cannot approve their own request"}, result.Violations)

	assert.True(t, validator.ValidateInstance(instance, chain, "someone-else").Valid)
}

func TestValidateInstance_SegregationOnlyOnApprovalSteps(t *testing.T) {
	validator, clock := newValidator(t)
	task := &models.WorkflowStep{ID: "task", Name: "Count stock", Type: models.StepTypeManualTask}
	chain := testutil.NewChain(task)
	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("task"), func(i *models.WorkflowInstance) {
		i.StartedAt = clock.Now()
	})

	assert.True(t, validator.ValidateInstance(instance, chain, "initiator").Valid)
}

func TestValidateInstance_SegregationDisabled(t *testing.T) {
	config := governance.DefaultConfig()
	config.EnforceSegregationOfDuties = false

	validator := governance.NewValidator(config)
	chain := testutil.LinearChain(1)
	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("step-1"))

	assert.True(t, validator.ValidateInstance(instance, chain, "initiator").Valid)
}

func TestValidateInstance_Justification(t *testing.T) {
	tests := []struct {
		name  string
		value any
		valid bool
	}{
		{"present", "quarterly restock", true},
		{"blank", "   ", false},
		{"missing", nil, false},
		{"non string", map[string]any{"ticket": "OPS-12"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator, clock := newValidator(t)
			chain := testutil.LinearChain(1)
			instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("step-1"), func(i *models.WorkflowInstance) {
				i.StartedAt = clock.Now()
				if tt.value == nil {
					delete(i.Metadata, models.MetadataJustification)
				} else {
					i.Metadata[models.MetadataJustification] = tt.value
				}
			})

			result := validator.ValidateInstance(instance, chain, "u1")

			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.Contains(t, result.Violations, "Business justification is required")
			}
		})
	}
}

func TestValidateInstance_Duration(t *testing.T) {
	validator, clock := newValidator(t)
	chain := testutil.LinearChain(1)
	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("step-1"), func(i *models.WorkflowInstance) {
		i.StartedAt = clock.Now()
	})

	clock.Advance(6 * 24 * time.Hour)
	assert.True(t, validator.ValidateInstance(instance, chain, "u1").Valid)

	clock.Advance(2 * 24 * time.Hour)

	result := validator.ValidateInstance(instance, chain, "u1")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Instance exceeds maximum duration")
}

func TestValidateInstance_AccumulatesViolations(t *testing.T) {
	validator, clock := newValidator(t)
	chain := testutil.LinearChain(1)
	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("step-1"), func(i *models.WorkflowInstance) {
		i.StartedAt = clock.Now()
		delete(i.Metadata, models.MetadataJustification)
	})

	clock.Advance(8 * 24 * time.Hour)

	result := validator.ValidateInstance(instance, chain, "initiator")

	assert.Len(t, result.Violations, 3)
}

func TestValidateInstance_DenyPolicy(t *testing.T) {
	chain := testutil.LinearChain(2)

	deny := &models.WorkflowPolicy{
		ID:         "no-weekend-orders",
		Name:       "Restricted warehouse",
		Type:       models.PolicyTypeAccessControl,
		Enabled:    true,
		WorkflowID: chain.ID,
		StepID:     "step-2",
		Rules:      []models.PolicyRule{{Action: models.RuleActionDeny}},
		Conditions: []models.WorkflowCondition{{
			Field:      "warehouse",
			Operator:   models.OperatorEquals,
			Value:      "quarantine",
			DataSource: models.DataSourceMetadata,
		}},
	}

	validator, clock := newValidator(t, governance.WithPolicies(deny))

	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("step-1"), testutil.WithMetadata(map[string]any{
		"warehouse": "quarantine",
	}), func(i *models.WorkflowInstance) {
		i.StartedAt = clock.Now()
	})

	assert.True(t, validator.ValidateInstance(instance, chain, "u1").Valid, "policy is scoped to step-2")

	instance.CurrentStep = "step-2"

	result := validator.ValidateInstance(instance, chain, "u2")
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"Policy Restricted warehouse violated"}, result.Violations)

	other := testutil.LinearChain(2)
	instance.ChainID = other.ID
	assert.True(t, validator.ValidateInstance(instance, other, "u2").Valid, "policy is scoped to its workflow")

	deny.Enabled = false
	assert.True(t, validator.ValidateInstance(instance, chain, "u2").Valid)
}

func TestEvaluatePolicies_Defaults(t *testing.T) {
	validator, clock := newValidator(t, governance.WithPolicies(governance.DefaultPolicies()...))

	chain := testutil.NewChain(testutil.ParallelStep("review", "u1", "u2"))
	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("review"), testutil.WithMetadata(map[string]any{
		"value":    250000,
		"deadline": clock.Now().Add(-time.Hour),
	}))

	evaluations := validator.EvaluatePolicies(instance, chain, "u1")
	require.Len(t, evaluations, 3)

	ids := make([]string, len(evaluations))
	for i, evaluation := range evaluations {
		ids[i] = evaluation.Policy.ID
		assert.True(t, evaluation.Compliant)
	}

	assert.Equal(t, []string{"wf_high_value_approval", "wf_deadline_enforcement", "wf_parallel_consensus"}, ids)
	assert.Equal(t, models.PolicyActionEscalate, evaluations[0].Actions[0].Type)
	assert.Equal(t, "senior_manager", evaluations[0].Actions[0].Params["role"])
}

func TestEvaluatePolicies_NoMatch(t *testing.T) {
	validator, _ := newValidator(t, governance.WithPolicies(governance.DefaultPolicies()...))

	chain := testutil.LinearChain(1)
	instance := testutil.CreateTestInstance(testutil.WithChain(chain), testutil.WithCurrentStep("step-1"), testutil.WithMetadata(map[string]any{
		"value": 50,
	}))

	assert.Empty(t, validator.EvaluatePolicies(instance, chain, "u1"))
}

func TestApplyPolicyActions(t *testing.T) {
	sink := audit.NewMemorySink()
	validator, _ := newValidator(t, governance.WithAuditSink(sink))
	instance := testutil.CreateTestInstance()

	actions := []models.PolicyAction{
		{Type: models.PolicyActionEscalate, Params: map[string]any{"role": "senior_manager", "reason": "High-value transaction"}},
		{Type: models.PolicyActionNotify, Params: map[string]any{"channel": "email"}},
		{Type: models.PolicyActionReject, Params: map[string]any{}},
		{Type: models.PolicyActionModify, Params: map[string]any{"requireAll": true}},
	}

	err := validator.ApplyPolicyActions(context.Background(), actions, instance, "system")
	require.NoError(t, err)

	entries := sink.Query(audit.Query{EntityID: instance.ID})
	require.Len(t, entries, 3)

	assert.Equal(t, audit.ActionApprovalRequest, entries[0].Action)
	assert.Equal(t, "senior_manager", entries[0].Details["escalatedTo"])

	assert.Equal(t, audit.ActionApprovalDecision, entries[1].Action)
	assert.Equal(t, "rejected", entries[1].Details["decision"])
	assert.Equal(t, "Policy rejection", entries[1].Details["reason"])

	assert.Equal(t, audit.ActionEntityUpdate, entries[2].Action)
	assert.Equal(t, audit.EntityTypeInstance, entries[2].EntityType)
}

func TestPolicyRegistry(t *testing.T) {
	validator, _ := newValidator(t)

	require.Error(t, validator.AddPolicy(&models.WorkflowPolicy{Name: "no id"}))
	require.NoError(t, validator.AddPolicy(&models.WorkflowPolicy{ID: "b", Priority: 2, Enabled: true}))
	require.NoError(t, validator.AddPolicy(&models.WorkflowPolicy{ID: "a", Priority: 2}))
	require.NoError(t, validator.AddPolicy(&models.WorkflowPolicy{ID: "c", Priority: 1, Enabled: true}))

	policies := validator.Policies()
	require.Len(t, policies, 3)
	assert.Equal(t, "c", policies[0].ID)
	assert.Equal(t, "a", policies[1].ID)
	assert.Equal(t, "b", policies[2].ID)

	assert.Equal(t, governance.Metrics{TotalPolicies: 3, ActivePolicies: 2}, validator.Metrics())

	assert.True(t, validator.RemovePolicy("a"))
	assert.False(t, validator.RemovePolicy("a"))
	assert.Equal(t, governance.Metrics{TotalPolicies: 2, ActivePolicies: 2}, validator.Metrics())
}
