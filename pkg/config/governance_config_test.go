package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "governance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	config, err := Load("../../configs/governance.yaml")
	require.NoError(t, err)

	assert.Equal(t, 20, config.Governance.MaxStepsPerChain)
	assert.Equal(t, models.Duration(168*time.Hour), config.Governance.MaxInstanceDuration)
	assert.True(t, config.DefaultPolicies)
	assert.False(t, config.Enforce)
	assert.Equal(t, 1, config.MaxEscalations)
	require.Len(t, config.Policies, 1)
	assert.Equal(t, "large-adjustment", config.Policies[0].ID)
	assert.Equal(t, models.OperatorGreaterThan, config.Policies[0].Conditions[0].Operator)
	assert.Equal(t, []string{"maria", "joao"}, config.Roles["warehouse_manager"])
	assert.Equal(t, []string{"carlos", "beatriz"}, config.Groups["ops-lead"])
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
governance:
  max_steps_per_chain: 5
max_escalations: 3
`)

	config, err := Load(path)
	require.NoError(t, err)

	defaults := governance.DefaultConfig()
	assert.Equal(t, 5, config.Governance.MaxStepsPerChain)
	assert.Equal(t, defaults.MaxApproversPerStep, config.Governance.MaxApproversPerStep)
	assert.Equal(t, defaults.MaxInstanceDuration, config.Governance.MaxInstanceDuration)
	assert.Equal(t, 3, config.MaxEscalations)
	assert.Empty(t, config.Roles)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{
			name:    "invalid yaml",
			content: "governance: [",
			message: "failed to parse YAML config",
		},
		{
			name:    "non positive step limit",
			content: "governance:\n  max_steps_per_chain: 0\n",
			message: "max_steps_per_chain must be positive",
		},
		{
			name:    "negative escalations",
			content: "max_escalations: -1\n",
			message: "max_escalations cannot be negative",
		},
		{
			name:    "policy without id",
			content: "policies:\n  - name: nameless\n    rules: [{action: flag}]\n",
			message: "policies[0]: id is required",
		},
		{
			name:    "duplicate policy",
			content: "policies:\n  - id: p1\n    rules: [{action: flag}]\n  - id: p1\n    rules: [{action: deny}]\n",
			message: "policies[1]: duplicate id 'p1'",
		},
		{
			name:    "policy without rules",
			content: "policies:\n  - id: p1\n",
			message: "at least one rule or action is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	config, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), config)

	config, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, governance.DefaultConfig(), config.Governance)

	_, err = LoadOrDefault(writeConfig(t, "governance: ["))
	require.Error(t, err)
}

func TestConfig_Validator(t *testing.T) {
	config, err := Load("../../configs/governance.yaml")
	require.NoError(t, err)

	validator := config.Validator()
	assert.Len(t, validator.Policies(), len(governance.DefaultPolicies())+1)
	assert.Equal(t, config.Governance, validator.Config())

	config.DefaultPolicies = false
	assert.Len(t, config.Validator().Policies(), 1)
}

func TestConfig_Directory(t *testing.T) {
	config, err := Load("../../configs/governance.yaml")
	require.NoError(t, err)

	directory := config.Directory()

	users, err := directory.Resolve(context.Background(), models.Approver{Type: models.ApproverTypeRole, Value: "warehouse_manager"}, &models.WorkflowInstance{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"maria", "joao"}, users)

	users, err = directory.Resolve(context.Background(), models.Approver{Type: models.ApproverTypeGroup, Value: "ops-lead"}, &models.WorkflowInstance{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"carlos", "beatriz"}, users)
}
