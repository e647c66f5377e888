package registry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actionContext() ActionContext {
	return ActionContext{
		Instance: &models.WorkflowInstance{
			ID:       "inst-1",
			EntityID: "PO-9",
			Metadata: map[string]any{"quantity": 40},
		},
		Chain: &models.WorkflowChain{ID: "chain-1", Name: "Replenishment"},
		Step:  &models.WorkflowStep{ID: "reserve", Name: "Reserve stock", Type: models.StepTypeAutomated},
	}
}

func TestRegistry_CreateAction(t *testing.T) {
	reg := NewDefaultRegistry(slog.Default())

	action, err := reg.CreateAction("log", map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.IsType(t, &LogAction{}, action)

	_, err = reg.CreateAction("http_request", nil)
	require.ErrorIs(t, err, ErrActionNotRegistered)
}

func TestRegistry_SchemaValidation(t *testing.T) {
	reg := NewDefaultRegistry(slog.Default())

	_, err := reg.CreateAction("log", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message")

	_, err = reg.CreateAction("log", map[string]any{"message": "x", "level": "loud"})
	require.Error(t, err)

	_, err = reg.CreateAction("set_metadata", map[string]any{"values": map[string]any{}})
	require.Error(t, err)
}

func TestRegistry_Actions(t *testing.T) {
	reg := NewDefaultRegistry(slog.Default())

	ids := make([]string, 0)
	for _, factory := range reg.Actions() {
		ids = append(ids, factory.ID())
	}

	assert.Equal(t, []string{"log", "set_metadata"}, ids)
}

func TestLogAction_Execute(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	action, err := NewLogActionFactory().Create(map[string]any{
		"message": "{{ .step.name }} for {{ .instance.entity_id }}",
		"level":   "warn",
	})
	require.NoError(t, err)

	output, err := action.Execute(context.Background(), actionContext(), logger)
	require.NoError(t, err)
	assert.Empty(t, output.Metadata)

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Reserve stock for PO-9")
}

func TestSetMetadataAction_Execute(t *testing.T) {
	action, err := NewSetMetadataActionFactory().Create(map[string]any{
		"values": map[string]any{
			"reserved":      true,
			"reserved_by":   "{{ .chain.name }}",
			"quantity_copy": "{{ .metadata.quantity }}",
		},
	})
	require.NoError(t, err)

	output, err := action.Execute(context.Background(), actionContext(), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"reserved":      true,
		"reserved_by":   "Replenishment",
		"quantity_copy": 40.0,
	}, output.Metadata)
}
