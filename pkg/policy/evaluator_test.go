package policy_test

import (
	"testing"
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/policy"
	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		operator models.ConditionOperator
		actual   any
		expected any
		want     bool
	}{
		{"equals strings", models.OperatorEquals, "parallel", "parallel", true},
		{"equals numbers across types", models.OperatorEquals, float64(5), 5, true},
		{"equals is strict on kind", models.OperatorEquals, "5", 5, false},
		{"contains", models.OperatorContains, "urgent-restock", "restock", true},
		{"contains nil", models.OperatorContains, nil, "", false},
		{"greater than", models.OperatorGreaterThan, 150000, 100000, true},
		{"greater than numeric string", models.OperatorGreaterThan, "150000", 100000, true},
		{"greater than not a number", models.OperatorGreaterThan, "lots", 1, false},
		{"less than", models.OperatorLessThan, 500, 1000, true},
		{"less than missing", models.OperatorLessThan, nil, 1000, false},
		{"in", models.OperatorIn, "north", []any{"north", "south"}, true},
		{"in typed slice", models.OperatorIn, "east", []string{"north", "south"}, false},
		{"in non list", models.OperatorIn, "north", "north", false},
		{"not in", models.OperatorNotIn, "east", []any{"north", "south"}, true},
		{"not in non list", models.OperatorNotIn, "east", "north", false},
		{"matches", models.OperatorMatches, "PO-2024-001", `^PO-\d{4}-\d+$`, true},
		{"matches bad pattern", models.OperatorMatches, "x", `(`, false},
		{"unknown operator", models.ConditionOperator("between"), 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Compare(tt.operator, tt.actual, tt.expected))
		})
	}
}

func TestResolve(t *testing.T) {
	chain := &models.WorkflowChain{
		ID:   "chain-1",
		Name: "Purchase approval",
		Steps: []*models.WorkflowStep{
			{ID: "review", Name: "Review", Type: models.StepTypeApproval, Mode: models.StepModeParallel},
		},
	}

	instance := &models.WorkflowInstance{
		ID:          "inst-1",
		ChainID:     "chain-1",
		EntityType:  "purchase_order",
		CurrentStep: "review",
		Metadata: map[string]any{
			models.MetadataInitiatedBy: "alice",
			"value":                    250000,
			"supplier":                 map[string]any{"country": "DE"},
		},
	}

	evalCtx := policy.Context{Instance: instance, Chain: chain, ActorID: "bob"}

	tests := []struct {
		name      string
		condition models.WorkflowCondition
		want      any
	}{
		{"entity prefix reads metadata", models.WorkflowCondition{Field: "entity.value"}, 250000},
		{"entity instance field", models.WorkflowCondition{Field: "entity_type", DataSource: models.DataSourceEntity}, "purchase_order"},
		{"entity falls back to metadata", models.WorkflowCondition{Field: "supplier.country"}, "DE"},
		{"metadata nested", models.WorkflowCondition{Field: "supplier.country", DataSource: models.DataSourceMetadata}, "DE"},
		{"metadata missing", models.WorkflowCondition{Field: "deadline", DataSource: models.DataSourceMetadata}, nil},
		{"user id", models.WorkflowCondition{Field: "id", DataSource: models.DataSourceUser}, "bob"},
		{"user other field", models.WorkflowCondition{Field: "email", DataSource: models.DataSourceUser}, nil},
		{"context initiator", models.WorkflowCondition{Field: "workflow.initiator", DataSource: models.DataSourceContext}, "alice"},
		{"context step mode", models.WorkflowCondition{Field: "step.mode", DataSource: models.DataSourceContext}, "parallel"},
		{"context unknown", models.WorkflowCondition{Field: "step.color", DataSource: models.DataSourceContext}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Resolve(tt.condition, evalCtx))
		})
	}
}

func TestEvaluateAll(t *testing.T) {
	instance := &models.WorkflowInstance{Metadata: map[string]any{"value": 500, "warehouse": "north"}}
	evalCtx := policy.Context{Instance: instance}

	assert.True(t, policy.EvaluateAll(nil, evalCtx))
	assert.True(t, policy.EvaluateAll([]models.WorkflowCondition{
		{Field: "value", Operator: models.OperatorLessThan, Value: 1000, DataSource: models.DataSourceMetadata},
		{Field: "warehouse", Operator: models.OperatorEquals, Value: "north", DataSource: models.DataSourceMetadata},
	}, evalCtx))
	assert.False(t, policy.EvaluateAll([]models.WorkflowCondition{
		{Field: "value", Operator: models.OperatorLessThan, Value: 1000, DataSource: models.DataSourceMetadata},
		{Field: "warehouse", Operator: models.OperatorEquals, Value: "south", DataSource: models.DataSourceMetadata},
	}, evalCtx))
}

func TestAutoApprove(t *testing.T) {
	instance := &models.WorkflowInstance{Metadata: map[string]any{"value": 500, "sku": "SKU-001"}}

	assert.True(t, policy.AutoApprove(&models.AutoApproveCondition{Field: "value", Operator: models.OperatorLessThan, Value: 1000}, instance))
	assert.False(t, policy.AutoApprove(&models.AutoApproveCondition{Field: "value", Operator: models.OperatorGreaterThan, Value: 1000}, instance))
	assert.True(t, policy.AutoApprove(&models.AutoApproveCondition{Field: "sku", Operator: models.OperatorMatches, Value: "^SKU-"}, instance))
	assert.False(t, policy.AutoApprove(nil, instance))
}

func TestLookup(t *testing.T) {
	data := map[string]any{
		"a":    map[string]any{"b": map[string]string{"c": "deep"}},
		"leaf": 1,
	}

	value, ok := policy.Lookup(data, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, "deep", value)

	_, ok = policy.Lookup(data, "leaf.child")
	assert.False(t, ok)

	_, ok = policy.Lookup(nil, "a")
	assert.False(t, ok)
}

func TestEvaluate_Now(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := models.WorkflowCondition{Field: "deadline", Operator: models.OperatorLessThan, Value: "now", DataSource: models.DataSourceMetadata}

	past := &models.WorkflowInstance{Metadata: map[string]any{"deadline": "2026-02-01T00:00:00Z"}}
	future := &models.WorkflowInstance{Metadata: map[string]any{"deadline": now.Add(time.Hour)}}
	missing := &models.WorkflowInstance{Metadata: map[string]any{}}

	assert.True(t, policy.Evaluate(deadline, policy.Context{Instance: past, Now: now}))
	assert.False(t, policy.Evaluate(deadline, policy.Context{Instance: future, Now: now}))
	assert.False(t, policy.Evaluate(deadline, policy.Context{Instance: missing, Now: now}))
}
