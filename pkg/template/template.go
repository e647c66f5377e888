// Package template renders notification texts and action parameters against a workflow instance.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/stockflow/pkg/models"
)

// Data builds the template data for an instance positioned at step.
//
//	{{ .instance.entity_id }}  {{ .metadata.value }}  {{ .chain.name }}  {{ .step.name }}
func Data(instance *models.WorkflowInstance, chain *models.WorkflowChain, step *models.WorkflowStep) map[string]any {
	data := map[string]any{}

	if instance != nil {
		data["instance"] = map[string]any{
			"id":           instance.ID,
			"chain_id":     instance.ChainID,
			"entity_id":    instance.EntityID,
			"entity_type":  instance.EntityType,
			"status":       string(instance.Status),
			"current_step": instance.CurrentStep,
			"initiator":    instance.Initiator(),
		}
		data["metadata"] = instance.Metadata
	}

	if chain != nil {
		data["chain"] = map[string]any{
			"id":   chain.ID,
			"name": chain.Name,
		}
	}

	if step != nil {
		data["step"] = map[string]any{
			"id":   step.ID,
			"name": step.Name,
			"type": string(step.Type),
		}
	}

	return data
}

// NeedsTemplating reports whether input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderString renders input and returns the raw text.
func RenderString(input string, data any) (string, error) {
	if !NeedsTemplating(input) {
		return input, nil
	}

	tmpl, err := template.
		New("stockflow").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(input)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", input, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", input, err)
	}

	return buf.String(), nil
}

// Render renders input and converts the result to JSON, a number or a bool
// when it looks like one.
func Render(input string, data any) (any, error) {
	rendered, err := RenderString(input, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(rendered)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", input, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
