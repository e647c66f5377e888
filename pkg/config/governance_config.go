// Package config provides configuration loading for governance and approver directories
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dukex/stockflow/pkg/approvers"
	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// GovernanceConfigFile represents the structure of the governance.yaml file
type GovernanceConfigFile struct {
	Governance      governance.Config        `yaml:"governance"`
	Enforce         bool                     `yaml:"enforce"`
	DefaultPolicies bool                     `yaml:"default_policies"`
	MaxEscalations  *int                     `yaml:"max_escalations"`
	Policies        []*models.WorkflowPolicy `yaml:"policies"`
	Directory       DirectoryConfigFile      `yaml:"directory"`
}

// DirectoryConfigFile lists the members of roles and groups
type DirectoryConfigFile struct {
	Roles  map[string][]string `yaml:"roles"`
	Groups map[string][]string `yaml:"groups"`
}

// Config is the loaded governance configuration
type Config struct {
	Governance      governance.Config
	Enforce         bool
	DefaultPolicies bool
	MaxEscalations  int
	Policies        []*models.WorkflowPolicy
	Roles           map[string][]string
	Groups          map[string][]string
}

func Default() Config {
	return Config{
		Governance:     governance.DefaultConfig(),
		MaxEscalations: 1,
		Roles:          map[string][]string{},
		Groups:         map[string][]string{},
	}
}

// Load loads governance configuration from a YAML file. Limits missing from
// the file keep their default values.
func Load(filepath string) (Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	configFile := GovernanceConfigFile{Governance: governance.DefaultConfig()}
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config := Default()
	config.Governance = configFile.Governance
	config.Enforce = configFile.Enforce
	config.DefaultPolicies = configFile.DefaultPolicies
	config.Policies = configFile.Policies

	if configFile.MaxEscalations != nil {
		config.MaxEscalations = *configFile.MaxEscalations
	}

	if configFile.Directory.Roles != nil {
		config.Roles = configFile.Directory.Roles
	}

	if configFile.Directory.Groups != nil {
		config.Groups = configFile.Directory.Groups
	}

	if err := Validate(config); err != nil {
		return Config{}, err
	}

	return config, nil
}

// LoadOrDefault loads the file when a path is given and the file exists,
// falling back to the defaults otherwise
func LoadOrDefault(filepath string) (Config, error) {
	if filepath == "" {
		return Default(), nil
	}

	config, err := Load(filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	return config, err
}

// Validate validates the governance configuration
func Validate(config Config) error {
	if config.Governance.MaxStepsPerChain <= 0 {
		return fmt.Errorf("max_steps_per_chain must be positive")
	}

	if config.Governance.MaxApproversPerStep <= 0 {
		return fmt.Errorf("max_approvers_per_step must be positive")
	}

	if config.Governance.MaxInstanceDuration < 0 {
		return fmt.Errorf("max_instance_duration cannot be negative")
	}

	if config.MaxEscalations < 0 {
		return fmt.Errorf("max_escalations cannot be negative")
	}

	seen := make(map[string]bool, len(config.Policies))

	for i, policy := range config.Policies {
		if policy == nil || policy.ID == "" {
			return fmt.Errorf("policies[%d]: id is required", i)
		}

		if seen[policy.ID] {
			return fmt.Errorf("policies[%d]: duplicate id '%s'", i, policy.ID)
		}

		seen[policy.ID] = true

		if len(policy.Rules) == 0 && len(policy.Actions) == 0 {
			return fmt.Errorf("policies[%d]: at least one rule or action is required", i)
		}
	}

	return nil
}

// Validator builds a governance validator with the configured limits and
// policies, plus the default policies when enabled.
func (c Config) Validator(opts ...governance.Option) *governance.Validator {
	policies := make([]*models.WorkflowPolicy, 0, len(c.Policies))
	if c.DefaultPolicies {
		policies = append(policies, governance.DefaultPolicies()...)
	}

	policies = append(policies, c.Policies...)

	return governance.NewValidator(c.Governance, append([]governance.Option{governance.WithPolicies(policies...)}, opts...)...)
}

// Directory builds the approver directory from the configured roles and groups.
func (c Config) Directory() *approvers.Directory {
	directory := approvers.NewDirectory()

	for role, users := range c.Roles {
		directory.SetRole(role, users...)
	}

	for group, users := range c.Groups {
		directory.SetGroup(group, users...)
	}

	return directory
}
