package approvers_test

import (
	"context"
	"testing"

	"github.com/dukex/stockflow/pkg/approvers"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_Resolve(t *testing.T) {
	directory := approvers.NewDirectory()
	directory.SetRole("warehouse_manager", "maria", "joao")
	directory.SetGroup("finance", "ana")

	instance := &models.WorkflowInstance{Metadata: map[string]any{
		"owner":    "carla",
		"buyers":   []any{"b1", "b2"},
		"supplier": map[string]any{"contact": "s1"},
	}}

	tests := []struct {
		name     string
		approver models.Approver
		want     []string
	}{
		{"user", models.Approver{Type: models.ApproverTypeUser, Value: "u1"}, []string{"u1"}},
		{"user with delegate", models.Approver{Type: models.ApproverTypeUser, Value: "u1", Delegate: "u2"}, []string{"u1", "u2"}},
		{"role", models.Approver{Type: models.ApproverTypeRole, Value: "warehouse_manager"}, []string{"maria", "joao"}},
		{"group", models.Approver{Type: models.ApproverTypeGroup, Value: "finance"}, []string{"ana"}},
		{"dynamic", models.Approver{Type: models.ApproverTypeDynamic, Value: "entity.owner"}, []string{"carla"}},
		{"dynamic list", models.Approver{Type: models.ApproverTypeDynamic, Value: "buyers"}, []string{"b1", "b2"}},
		{"dynamic nested", models.Approver{Type: models.ApproverTypeDynamic, Value: "metadata.supplier.contact"}, []string{"s1"}},
		{"delegate not duplicated", models.Approver{Type: models.ApproverTypeGroup, Value: "finance", Delegate: "ana"}, []string{"ana"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := directory.Resolve(context.Background(), tt.approver, instance)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectory_Unresolved(t *testing.T) {
	directory := approvers.NewDirectory()
	instance := &models.WorkflowInstance{Metadata: map[string]any{"empty": ""}}

	for _, approver := range []models.Approver{
		{Type: models.ApproverTypeRole, Value: "nobody"},
		{Type: models.ApproverTypeGroup, Value: "ghosts"},
		{Type: models.ApproverTypeDynamic, Value: "entity.owner"},
		{Type: models.ApproverTypeDynamic, Value: "empty"},
		{Type: models.ApproverType("robot"), Value: "r2"},
	} {
		_, err := directory.Resolve(context.Background(), approver, instance)
		assert.ErrorIs(t, err, approvers.ErrUnresolved, approver.Value)
	}
}

func TestResolveAll(t *testing.T) {
	directory := approvers.NewDirectory()
	directory.SetRole("buyer", "u1", "u3")

	recipients, err := approvers.ResolveAll(context.Background(), directory, []models.Approver{
		{Type: models.ApproverTypeUser, Value: "u1"},
		{Type: models.ApproverTypeRole, Value: "buyer"},
		{Type: models.ApproverTypeRole, Value: "missing"},
	}, &models.WorkflowInstance{})

	assert.Equal(t, []string{"u1", "u3"}, recipients)
	require.ErrorIs(t, err, approvers.ErrUnresolved)
}
