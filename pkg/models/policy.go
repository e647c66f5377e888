package models

// ConditionOperator compares a resolved value against a condition value.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorIn          ConditionOperator = "in"
	OperatorNotIn       ConditionOperator = "not_in"
	OperatorMatches     ConditionOperator = "matches"
)

// DataSource selects where a condition reads its value from.
type DataSource string

const (
	DataSourceEntity   DataSource = "entity"
	DataSourceMetadata DataSource = "metadata"
	DataSourceUser     DataSource = "user"
	DataSourceContext  DataSource = "context"
)

type PolicyType string

const (
	PolicyTypeAccessControl    PolicyType = "access_control"
	PolicyTypeDataQuality      PolicyType = "data_quality"
	PolicyTypeApprovalWorkflow PolicyType = "approval_workflow"
	PolicyTypeRetention        PolicyType = "retention"
	PolicyTypeExportControl    PolicyType = "export_control"
)

type RuleAction string

const (
	RuleActionDeny     RuleAction = "deny"
	RuleActionFlag     RuleAction = "flag"
	RuleActionEscalate RuleAction = "escalate"
	RuleActionRequire  RuleAction = "require"
	RuleActionAllow    RuleAction = "allow"
)

type PolicyActionType string

const (
	PolicyActionApprove  PolicyActionType = "approve"
	PolicyActionReject   PolicyActionType = "reject"
	PolicyActionEscalate PolicyActionType = "escalate"
	PolicyActionNotify   PolicyActionType = "notify"
	PolicyActionModify   PolicyActionType = "modify"
	PolicyActionBranch   PolicyActionType = "branch"
)

// WorkflowCondition is a single predicate over instance data.
type WorkflowCondition struct {
	Field      string            `json:"field"                 yaml:"field"`
	Operator   ConditionOperator `json:"operator"              yaml:"operator"`
	Value      any               `json:"value"                 yaml:"value"`
	DataSource DataSource        `json:"data_source,omitempty" yaml:"data_source,omitempty"`
}

type PolicyRule struct {
	Action  RuleAction `json:"action"            yaml:"action"`
	Message string     `json:"message,omitempty" yaml:"message,omitempty"`
}

type PolicyAction struct {
	Type   PolicyActionType `json:"type"             yaml:"type"`
	Params map[string]any   `json:"params,omitempty" yaml:"params,omitempty"`
}

// WorkflowPolicy is a custom governance rule scoped by optional workflow and step filters.
type WorkflowPolicy struct {
	ID         string              `json:"id"                    yaml:"id"`
	Name       string              `json:"name"                  yaml:"name"`
	Type       PolicyType          `json:"type"                  yaml:"type"`
	Priority   int                 `json:"priority"              yaml:"priority"`
	Enabled    bool                `json:"enabled"               yaml:"enabled"`
	WorkflowID string              `json:"workflow_id,omitempty" yaml:"workflow_id,omitempty"`
	StepID     string              `json:"step_id,omitempty"     yaml:"step_id,omitempty"`
	Rules      []PolicyRule        `json:"rules"                 yaml:"rules"`
	Conditions []WorkflowCondition `json:"conditions"            yaml:"conditions"`
	Actions    []PolicyAction      `json:"actions,omitempty"     yaml:"actions,omitempty"`
}
