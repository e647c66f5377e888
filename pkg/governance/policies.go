package governance

import "github.com/dukex/stockflow/pkg/models"

// DefaultPolicies returns the built-in workflow policies. None of them denies, so
// they never produce violations on their own; their actions feed ApplyPolicyActions.
// Segregation of duties is enforced by ValidateInstance directly.
func DefaultPolicies() []*models.WorkflowPolicy {
	return []*models.WorkflowPolicy{
		{
			ID:       "wf_high_value_approval",
			Name:     "High-Value Approval Required",
			Type:     models.PolicyTypeApprovalWorkflow,
			Priority: 1,
			Enabled:  true,
			Rules: []models.PolicyRule{{
				Action:  models.RuleActionFlag,
				Message: "High-value transaction requires senior approval",
			}},
			Conditions: []models.WorkflowCondition{{
				Field:      "entity.value",
				Operator:   models.OperatorGreaterThan,
				Value:      100000,
				DataSource: models.DataSourceEntity,
			}},
			Actions: []models.PolicyAction{{
				Type:   models.PolicyActionEscalate,
				Params: map[string]any{"role": "senior_manager", "reason": "High-value transaction"},
			}},
		},
		{
			ID:       "wf_deadline_enforcement",
			Name:     "Deadline Enforcement",
			Type:     models.PolicyTypeApprovalWorkflow,
			Priority: 3,
			Enabled:  true,
			Rules: []models.PolicyRule{{
				Action:  models.RuleActionEscalate,
				Message: "Deadline exceeded, escalating to manager",
			}},
			Conditions: []models.WorkflowCondition{{
				Field:      "deadline",
				Operator:   models.OperatorLessThan,
				Value:      "now",
				DataSource: models.DataSourceMetadata,
			}},
			Actions: []models.PolicyAction{{
				Type:   models.PolicyActionEscalate,
				Params: map[string]any{"notifyOriginal": true, "autoApprove": false},
			}},
		},
		{
			ID:       "wf_parallel_consensus",
			Name:     "Parallel Approval Consensus",
			Type:     models.PolicyTypeApprovalWorkflow,
			Priority: 4,
			Enabled:  true,
			Rules: []models.PolicyRule{{
				Action:  models.RuleActionRequire,
				Message: "All parallel approvers must approve",
			}},
			Conditions: []models.WorkflowCondition{{
				Field:      "step.mode",
				Operator:   models.OperatorEquals,
				Value:      "parallel",
				DataSource: models.DataSourceContext,
			}},
			Actions: []models.PolicyAction{{
				Type:   models.PolicyActionModify,
				Params: map[string]any{"requireAll": true, "threshold": 1.0},
			}},
		},
	}
}
