package engine

import (
	"errors"
	"fmt"

	"github.com/dukex/stockflow/pkg/governance"
	"github.com/dukex/stockflow/pkg/persistence"
)

var (
	// Not found errors (404). The chain and instance sentinels are shared with
	// the persistence layer so either can be matched with errors.Is.
	ErrChainNotFound    = persistence.ErrChainNotFound
	ErrInstanceNotFound = persistence.ErrInstanceNotFound
	ErrStepNotFound     = errors.New("workflow step not found")

	// ErrInvalidState is returned when a transition is not allowed: the instance
	// is terminal, the chain is not active or the step is not the current one.
	ErrInvalidState = errors.New("invalid workflow state")

	// ErrValidation is returned when a chain definition fails validation.
	ErrValidation = governance.ErrInvalidChain

	// ErrAutomation marks a failed automated step. It never reaches callers of
	// the engine; it is recorded on the instance instead.
	ErrAutomation = errors.New("automated step failed")

	// ErrGovernanceViolation is returned in enforcing mode when an approval
	// fails governance validation.
	ErrGovernanceViolation = governance.ErrPolicyViolation
)

// EngineError wraps an engine failure with the operation and the instance and
// step it concerns.
type EngineError struct {
	Op         string
	InstanceID string
	StepID     string
	Err        error
}

func (e *EngineError) Error() string {
	switch {
	case e.StepID != "":
		return fmt.Sprintf("%s instance %s step %s: %v", e.Op, e.InstanceID, e.StepID, e.Err)
	case e.InstanceID != "":
		return fmt.Sprintf("%s instance %s: %v", e.Op, e.InstanceID, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, instanceID, stepID string, err error) *EngineError {
	return &EngineError{Op: op, InstanceID: instanceID, StepID: stepID, Err: err}
}

// IsNotFound checks if an error should be reported as a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChainNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrStepNotFound)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsGovernanceViolation(err error) bool {
	return errors.Is(err, ErrGovernanceViolation)
}
