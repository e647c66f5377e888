package governance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidChain indicates a chain definition failed structural validation.
	ErrInvalidChain = errors.New("invalid workflow chain")

	// ErrPolicyViolation indicates an instance transition was blocked by governance.
	ErrPolicyViolation = errors.New("governance policy violation")
)

// Result is the outcome of a validation. Valid is true iff Violations is empty.
type Result struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

func newResult(violations []string) Result {
	if violations == nil {
		violations = []string{}
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}

// ValidationError carries the violations that made a chain invalid.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidChain, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidChain
}

// ViolationError carries the violations that blocked an instance transition.
type ViolationError struct {
	InstanceID string
	Violations []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%v for instance %s: %s", ErrPolicyViolation, e.InstanceID, strings.Join(e.Violations, "; "))
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrPolicyViolation
}
