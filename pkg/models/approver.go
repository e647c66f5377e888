package models

type ApproverType string

const (
	ApproverTypeUser    ApproverType = "user"
	ApproverTypeRole    ApproverType = "role"
	ApproverTypeGroup   ApproverType = "group"
	ApproverTypeDynamic ApproverType = "dynamic" // Value is an expression resolved at runtime
)

type Approver struct {
	Type     ApproverType `json:"type"               validate:"required,oneof=user role group dynamic"`
	Value    string       `json:"value"              validate:"required"`
	Delegate string       `json:"delegate,omitempty"`
	Optional bool         `json:"optional,omitempty"`
}
