// Package governance validates chains and running instances against structural
// limits and compliance policies.
package governance

import (
	"time"

	"github.com/dukex/stockflow/pkg/models"
)

// Config holds the limits every chain and instance is checked against.
type Config struct {
	MaxStepsPerChain             int             `yaml:"max_steps_per_chain"`
	MaxApproversPerStep          int             `yaml:"max_approvers_per_step"`
	MaxInstanceDuration          models.Duration `yaml:"max_instance_duration"`
	RequireBusinessJustification bool            `yaml:"require_business_justification"`
	AllowDynamicApprovers        bool            `yaml:"allow_dynamic_approvers"`
	EnforceSegregationOfDuties   bool            `yaml:"enforce_segregation_of_duties"`
}

func DefaultConfig() Config {
	return Config{
		MaxStepsPerChain:             20,
		MaxApproversPerStep:          10,
		MaxInstanceDuration:          models.Duration(7 * 24 * time.Hour),
		RequireBusinessJustification: true,
		AllowDynamicApprovers:        true,
		EnforceSegregationOfDuties:   true,
	}
}
