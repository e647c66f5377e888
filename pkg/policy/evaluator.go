package policy

import (
	"strings"
	"time"

	"github.com/dukex/stockflow/pkg/models"
)

// Context is everything a condition may read.
type Context struct {
	Instance *models.WorkflowInstance
	Chain    *models.WorkflowChain
	ActorID  string
	// Now replaces the condition value "now". Zero means the wall clock.
	Now time.Time
}

const (
	entityPrefix = "entity."
	nowValue     = "now"
)

// Evaluate resolves the condition's value from its data source and compares it.
func Evaluate(condition models.WorkflowCondition, evalCtx Context) bool {
	expected := condition.Value
	if expected == nowValue {
		expected = evalCtx.now()
	}

	return Compare(condition.Operator, Resolve(condition, evalCtx), expected)
}

func (c Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}

	return c.Now
}

// EvaluateAll reports whether every condition holds. An empty list holds.
func EvaluateAll(conditions []models.WorkflowCondition, evalCtx Context) bool {
	for _, condition := range conditions {
		if !Evaluate(condition, evalCtx) {
			return false
		}
	}

	return true
}

// AutoApprove evaluates an auto-approve condition against the instance metadata.
func AutoApprove(condition *models.AutoApproveCondition, instance *models.WorkflowInstance) bool {
	if condition == nil || instance == nil {
		return false
	}

	value, _ := Lookup(instance.Metadata, condition.Field)

	return Compare(condition.Operator, value, condition.Value)
}

// Resolve returns the value a condition refers to, or nil when it cannot be found.
func Resolve(condition models.WorkflowCondition, evalCtx Context) any {
	source := condition.DataSource
	if source == "" {
		source = models.DataSourceEntity
	}

	switch source {
	case models.DataSourceEntity:
		return entityValue(evalCtx.Instance, condition.Field)
	case models.DataSourceMetadata:
		if evalCtx.Instance == nil {
			return nil
		}

		value, _ := Lookup(evalCtx.Instance.Metadata, strings.TrimPrefix(condition.Field, "metadata."))

		return value
	case models.DataSourceUser:
		if condition.Field == "id" || condition.Field == "user.id" {
			return evalCtx.ActorID
		}

		return nil
	case models.DataSourceContext:
		return contextValue(evalCtx, condition.Field)
	default:
		return nil
	}
}

// entity fields are carried in the instance metadata; "entity.value" and "value"
// both read metadata["value"] unless "value" names an instance field.
func entityValue(instance *models.WorkflowInstance, field string) any {
	if instance == nil {
		return nil
	}

	if strings.HasPrefix(field, entityPrefix) {
		value, _ := Lookup(instance.Metadata, strings.TrimPrefix(field, entityPrefix))

		return value
	}

	view := map[string]any{
		"id":           instance.ID,
		"chain_id":     instance.ChainID,
		"entity_id":    instance.EntityID,
		"entity_type":  instance.EntityType,
		"status":       string(instance.Status),
		"current_step": instance.CurrentStep,
		"metadata":     instance.Metadata,
	}

	if value, ok := Lookup(view, field); ok {
		return value
	}

	value, _ := Lookup(instance.Metadata, field)

	return value
}

func contextValue(evalCtx Context, field string) any {
	instance := evalCtx.Instance

	switch field {
	case "user.id":
		return evalCtx.ActorID
	case "workflow.initiator":
		if instance == nil {
			return nil
		}

		return instance.Initiator()
	case "workflow.id":
		if evalCtx.Chain == nil {
			return nil
		}

		return evalCtx.Chain.ID
	case "workflow.name":
		if evalCtx.Chain == nil {
			return nil
		}

		return evalCtx.Chain.Name
	}

	step := currentStep(evalCtx)
	if step == nil {
		return nil
	}

	switch field {
	case "step.id":
		return step.ID
	case "step.mode":
		return string(step.Mode)
	case "step.type":
		return string(step.Type)
	default:
		return nil
	}
}

func currentStep(evalCtx Context) *models.WorkflowStep {
	if evalCtx.Chain == nil || evalCtx.Instance == nil {
		return nil
	}

	return evalCtx.Chain.Step(evalCtx.Instance.CurrentStep)
}

// Lookup walks a dot-separated path through nested maps.
func Lookup(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	var current any = data

	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}

			current = next
		case map[string]string:
			next, ok := node[part]
			if !ok {
				return nil, false
			}

			current = next
		default:
			return nil, false
		}
	}

	return current, true
}
