package models

// StepType determines how a step is dispatched.
type StepType string

const (
	StepTypeApproval     StepType = "approval"
	StepTypeNotification StepType = "notification"
	StepTypeAutomated    StepType = "automated"
	StepTypeConditional  StepType = "conditional"
	StepTypeManualTask   StepType = "manual_task"
)

// StepMode determines how many approvals complete a step.
type StepMode string

const (
	StepModeSequential StepMode = "sequential" // First approval completes the step
	StepModeParallel   StepMode = "parallel"   // Every required approver must approve
)

// ActionType is the kind of side effect a step action performs.
type ActionType string

const (
	ActionTypeNotify  ActionType = "notify"
	ActionTypeUpdate  ActionType = "update"
	ActionTypeExecute ActionType = "execute"
	ActionTypeBranch  ActionType = "branch"
)

// WorkflowStep is a single node of a chain.
type WorkflowStep struct {
	ID          string                `json:"id"                     validate:"required"`
	Name        string                `json:"name"                   validate:"required"`
	Type        StepType              `json:"type"                   validate:"required,oneof=approval notification automated conditional manual_task"`
	Mode        StepMode              `json:"mode,omitempty"         validate:"omitempty,oneof=sequential parallel"`
	Approvers   []Approver            `json:"approvers,omitempty"    validate:"dive"`
	Timeout     Duration              `json:"timeout,omitempty"`
	Escalation  *EscalationRule       `json:"escalation,omitempty"`
	AutoApprove *AutoApproveCondition `json:"auto_approve,omitempty"`
	Actions     []StepAction          `json:"actions,omitempty"      validate:"dive"`
	Branches    []Branch              `json:"branches,omitempty"`
	NextSteps   []string              `json:"next_steps,omitempty"`
}

// StepAction is a side effect attached to a step.
type StepAction struct {
	Type   ActionType     `json:"type"             validate:"required,oneof=notify update execute branch"`
	Target string         `json:"target,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Branch routes a conditional step to Target when all conditions hold.
type Branch struct {
	Name       string              `json:"name,omitempty"`
	Conditions []WorkflowCondition `json:"conditions"`
	Target     string              `json:"target"`
}

// EscalationRule describes what happens when a step timer fires.
type EscalationRule struct {
	Timeout        Duration   `json:"timeout"`
	EscalateTo     []Approver `json:"escalate_to,omitempty"`
	NotifyOriginal bool       `json:"notify_original,omitempty"`
	AutoApprove    bool       `json:"auto_approve,omitempty"`
	// MaxEscalations bounds how many times the step escalates before timing out.
	// Zero means the engine default.
	MaxEscalations int `json:"max_escalations,omitempty"`
}

// AutoApproveCondition lets the system approve a step without human input.
type AutoApproveCondition struct {
	Field      string            `json:"field"`
	Operator   ConditionOperator `json:"operator"`
	Value      any               `json:"value"`
	Confidence float64           `json:"confidence,omitempty"`
}

func (s *WorkflowStep) IsParallel() bool {
	return s.Mode == StepModeParallel
}

// RequiredApprovals is the quorum of a parallel step: every non-optional approver.
func (s *WorkflowStep) RequiredApprovals() int {
	required := 0

	for _, approver := range s.Approvers {
		if !approver.Optional {
			required++
		}
	}

	return required
}

func (s *WorkflowStep) HasDynamicApprovers() bool {
	for _, approver := range s.Approvers {
		if approver.Type == ApproverTypeDynamic {
			return true
		}
	}

	return false
}

// ActionsOf returns the step actions of the given type.
func (s *WorkflowStep) ActionsOf(actionType ActionType) []StepAction {
	actions := make([]StepAction, 0)

	for _, action := range s.Actions {
		if action.Type == actionType {
			actions = append(actions, action)
		}
	}

	return actions
}
