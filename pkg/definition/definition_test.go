package definition_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/stockflow/pkg/definition"
	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	def, err := definition.LoadFile("testdata/purchase_order.yaml")
	require.NoError(t, err)

	assert.Equal(t, "purchase-order-approval", def.ID)
	assert.Equal(t, "Purchase order approval", def.Name)
	assert.Equal(t, "testdata/purchase_order.yaml", def.Source)
	require.Len(t, def.Steps, 3)
	require.Len(t, def.Triggers, 2)

	manager := def.Steps[1]
	assert.Equal(t, models.StepTypeApproval, manager.Type)
	assert.Equal(t, 24*time.Hour, manager.Timeout.Std())
	require.NotNil(t, manager.Escalation)
	assert.Equal(t, 12*time.Hour, manager.Escalation.Timeout.Std())
	assert.True(t, manager.Escalation.NotifyOriginal)
	require.NotNil(t, manager.AutoApprove)
	assert.Equal(t, models.OperatorLessThan, manager.AutoApprove.Operator)

	director := def.Steps[2]
	assert.True(t, director.IsParallel())
	assert.Equal(t, time.Hour, director.Timeout.Std())

	route := def.Steps[0]
	require.Len(t, route.Branches, 1)
	assert.Equal(t, "director", route.Branches[0].Target)
	assert.Equal(t, models.DataSourceMetadata, route.Branches[0].Conditions[0].DataSource)

	assert.Equal(t, "0 6 * * 1", def.Triggers[1].Schedule)

	chain := def.Chain()
	assert.Equal(t, models.ChainStatusActive, chain.Status)
	assert.True(t, governance.NewChainValidator(governance.DefaultConfig()).Validate(chain).Valid)

	req := def.Request()
	assert.Equal(t, def.ID, req.ID)
	assert.Equal(t, def.Steps, req.Steps)
}

func TestParse_JSON(t *testing.T) {
	def, err := definition.Parse([]byte(`{
		"name": "Single step",
		"steps": [{"id": "review", "name": "Review", "type": "approval", "approvers": [{"type": "user", "value": "u1"}]}]
	}`), "inline.json")
	require.NoError(t, err)

	assert.Equal(t, "Single step", def.Name)
	assert.Empty(t, def.ID)
	assert.Equal(t, "u1", def.Steps[0].Approvers[0].Value)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{
			name:    "missing steps",
			input:   "name: Broken\n",
			message: "steps",
		},
		{
			name:    "unknown step type",
			input:   "name: Broken\nsteps:\n  - id: a\n    name: A\n    type: vote\n",
			message: "type",
		},
		{
			name:    "bad duration",
			input:   "name: Broken\nsteps:\n  - id: a\n    name: A\n    type: approval\n    timeout: soon\n",
			message: "timeout",
		},
		{
			name:    "schedule trigger without schedule",
			input:   "name: Broken\nsteps: []\ntriggers:\n  - type: schedule\n",
			message: "Schedule",
		},
		{
			name:    "empty document",
			input:   "",
			message: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := definition.Parse([]byte(tt.input), "broken.yaml")
			require.ErrorIs(t, err, definition.ErrInvalidDefinition)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	write("b.yml", "name: Second\nsteps: []\n")
	write("a.json", `{"name": "First", "steps": []}`)
	write("notes.txt", "ignored")
	write("c.yaml", "name: Broken\n")

	defs, err := definition.LoadDir(dir)
	require.ErrorIs(t, err, definition.ErrInvalidDefinition)
	require.Len(t, defs, 2)
	assert.Equal(t, "First", defs[0].Name)
	assert.Equal(t, "Second", defs[1].Name)
}
