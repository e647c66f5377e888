package governance

import (
	"fmt"
	"strings"

	"github.com/dukex/stockflow/pkg/models"
)

const (
	violationCircular    = "Chain contains circular dependencies"
	violationUnreachable = "Unreachable steps: "
)

// ChainValidator checks a chain's structure against the configured limits.
type ChainValidator struct {
	config Config
}

func NewChainValidator(config Config) *ChainValidator {
	return &ChainValidator{config: config}
}

// Validate accumulates every violation found; it never stops at the first one.
func (v *ChainValidator) Validate(chain *models.WorkflowChain) Result {
	violations := make([]string, 0)

	if strings.TrimSpace(chain.Name) == "" {
		violations = append(violations, "Chain name is required")
	}

	if len(chain.Steps) > v.config.MaxStepsPerChain {
		violations = append(violations, fmt.Sprintf("Chain exceeds maximum %d steps", v.config.MaxStepsPerChain))
	}

	for _, step := range chain.Steps {
		violations = append(violations, v.validateStep(step)...)
	}

	violations = append(violations, validateReferences(chain)...)

	if hasCycle(chain) {
		violations = append(violations, violationCircular)
	}

	if unreachable := unreachableSteps(chain); len(unreachable) > 0 {
		violations = append(violations, violationUnreachable+strings.Join(unreachable, ", "))
	}

	return newResult(violations)
}

func (v *ChainValidator) validateStep(step *models.WorkflowStep) []string {
	violations := make([]string, 0)

	if len(step.Approvers) > v.config.MaxApproversPerStep {
		violations = append(violations, fmt.Sprintf("Step %q exceeds maximum %d approvers", step.Name, v.config.MaxApproversPerStep))
	}

	if !v.config.AllowDynamicApprovers && step.HasDynamicApprovers() {
		violations = append(violations, fmt.Sprintf("Step %q uses dynamic approvers which are not allowed", step.Name))
	}

	if v.config.MaxInstanceDuration > 0 && step.Timeout > v.config.MaxInstanceDuration {
		violations = append(violations, fmt.Sprintf("Step %q timeout exceeds maximum duration", step.Name))
	}

	return violations
}

func validateReferences(chain *models.WorkflowChain) []string {
	violations := make([]string, 0)
	seen := make(map[string]bool, len(chain.Steps))

	for _, step := range chain.Steps {
		if seen[step.ID] {
			violations = append(violations, fmt.Sprintf("Duplicate step id %q", step.ID))
		}

		seen[step.ID] = true
	}

	for _, step := range chain.Steps {
		for _, next := range step.NextSteps {
			if !seen[next] {
				violations = append(violations, fmt.Sprintf("Step %q references unknown step %q", step.Name, next))
			}
		}

		for _, branch := range step.Branches {
			if !seen[branch.Target] {
				violations = append(violations, fmt.Sprintf("Step %q branches to unknown step %q", step.Name, branch.Target))
			}
		}
	}

	return violations
}

// hasCycle runs a depth-first search from every unvisited step and reports a
// back-edge to a step still on the recursion stack.
func hasCycle(chain *models.WorkflowChain) bool {
	visited := make(map[string]bool, len(chain.Steps))
	onStack := make(map[string]bool, len(chain.Steps))

	var visit func(id string) bool

	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		if step := chain.Step(id); step != nil {
			for _, next := range successors(step) {
				if !visited[next] {
					if visit(next) {
						return true
					}
				} else if onStack[next] {
					return true
				}
			}
		}

		onStack[id] = false

		return false
	}

	for _, step := range chain.Steps {
		if !visited[step.ID] && visit(step.ID) {
			return true
		}
	}

	return false
}

// unreachableSteps walks breadth-first from the first step and returns the names
// (or ids, for unnamed steps) of everything not visited.
func unreachableSteps(chain *models.WorkflowChain) []string {
	first := chain.FirstStep()
	if first == nil {
		return nil
	}

	reachable := map[string]bool{}
	queue := []string{first.ID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if reachable[current] {
			continue
		}

		reachable[current] = true

		if step := chain.Step(current); step != nil {
			queue = append(queue, successors(step)...)
		}
	}

	unreachable := make([]string, 0)

	for _, step := range chain.Steps {
		if reachable[step.ID] {
			continue
		}

		if step.Name != "" {
			unreachable = append(unreachable, step.Name)
		} else {
			unreachable = append(unreachable, step.ID)
		}
	}

	return unreachable
}

// successors are the declared next steps plus conditional branch targets.
func successors(step *models.WorkflowStep) []string {
	if len(step.Branches) == 0 {
		return step.NextSteps
	}

	next := append([]string(nil), step.NextSteps...)
	for _, branch := range step.Branches {
		next = append(next, branch.Target)
	}

	return next
}
