package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "milliseconds", input: `60000`, expected: time.Minute},
		{name: "duration string", input: `"2m"`, expected: 2 * time.Minute},
		{name: "null", input: `null`, expected: 0},
		{name: "invalid string", input: `"soon"`, wantErr: true},
		{name: "invalid type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Std())
		})
	}
}

func TestWorkflowStep_RequiredApprovals(t *testing.T) {
	step := &WorkflowStep{
		ID:   "review",
		Mode: StepModeParallel,
		Approvers: []Approver{
			{Type: ApproverTypeUser, Value: "u1"},
			{Type: ApproverTypeUser, Value: "u2"},
			{Type: ApproverTypeRole, Value: "auditor", Optional: true},
		},
	}

	assert.True(t, step.IsParallel())
	assert.Equal(t, 2, step.RequiredApprovals())
	assert.False(t, step.HasDynamicApprovers())
}

func TestInstanceStatus_IsTerminal(t *testing.T) {
	assert.False(t, InstanceStatusPending.IsTerminal())
	assert.False(t, InstanceStatusInProgress.IsTerminal())
	assert.True(t, InstanceStatusApproved.IsTerminal())
	assert.True(t, InstanceStatusRejected.IsTerminal())
	assert.True(t, InstanceStatusTimeout.IsTerminal())
	assert.True(t, InstanceStatusError.IsTerminal())
}

func TestWorkflowInstance_Clone(t *testing.T) {
	original := &WorkflowInstance{
		ID:       "i1",
		Metadata: map[string]any{MetadataInitiatedBy: "alice"},
		History:  []HistoryEntry{{StepID: "s1", Action: HistoryActionStarted}},
	}

	clone := original.Clone()
	clone.Metadata["extra"] = true
	clone.Append(HistoryEntry{StepID: "s1", Action: HistoryActionApproved})

	assert.Len(t, original.History, 1)
	assert.NotContains(t, original.Metadata, "extra")
	assert.Equal(t, "alice", clone.Initiator())
}

func TestWorkflowInstance_CloneNestedMetadata(t *testing.T) {
	original := &WorkflowInstance{
		ID: "i1",
		Metadata: map[string]any{
			"supplier": map[string]any{"country": "DE"},
			"lines":    []any{map[string]any{"sku": "A-1", "qty": 4}},
		},
		History: []HistoryEntry{{StepID: "s1", Action: HistoryActionEscalated, Metadata: map[string]any{"escalatedTo": []any{"u2"}}}},
	}

	clone := original.Clone()
	clone.Metadata["supplier"].(map[string]any)["country"] = "FR"
	clone.Metadata["lines"].([]any)[0].(map[string]any)["qty"] = 9
	clone.History[0].Metadata["escalatedTo"].([]any)[0] = "u3"

	assert.Equal(t, "DE", original.Metadata["supplier"].(map[string]any)["country"])
	assert.Equal(t, 4, original.Metadata["lines"].([]any)[0].(map[string]any)["qty"])
	assert.Equal(t, "u2", original.History[0].Metadata["escalatedTo"].([]any)[0])
	assert.Nil(t, CloneMetadata(nil))
}

func TestWorkflowTrigger_Matches(t *testing.T) {
	trigger := &WorkflowTrigger{
		Type:       TriggerTypeEntityCreate,
		EntityType: "purchase_order",
		Conditions: map[string]any{"warehouse": "north", "priority": 1},
	}

	event := EntityEvent{
		Type:       TriggerTypeEntityCreate,
		EntityType: "purchase_order",
		Data:       map[string]any{"warehouse": "north", "priority": float64(1)},
	}

	assert.True(t, trigger.Matches(event))

	event.EntityType = "contract"
	assert.False(t, trigger.Matches(event))

	event.EntityType = "purchase_order"
	event.Data["warehouse"] = "south"
	assert.False(t, trigger.Matches(event))

	event.Type = TriggerTypeEntityUpdate
	assert.False(t, trigger.Matches(event))
}
