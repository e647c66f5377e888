package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stockflow/pkg/template"
)

// LogActionFactory builds actions that write a templated message to the logger.
type LogActionFactory struct{}

func NewLogActionFactory() *LogActionFactory {
	return &LogActionFactory{}
}

func (*LogActionFactory) ID() string {
	return "log"
}

func (*LogActionFactory) Name() string {
	return "Log"
}

func (*LogActionFactory) Description() string {
	return "Logs a message at a specified level. Supports templating over the instance."
}

func (*LogActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log, e.g. 'Reserved stock for {{ .instance.entity_id }}'",
			},
			"level": map[string]any{
				"type":    "string",
				"default": "info",
				"enum":    []any{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []any{"message"},
	}
}

func (*LogActionFactory) Create(config map[string]any) (Action, error) {
	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	return &LogAction{message: message, level: parseLevel(level)}, nil
}

type LogAction struct {
	message string
	level   slog.Level
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (a *LogAction) Execute(ctx context.Context, actionCtx ActionContext, logger *slog.Logger) (Output, error) {
	message, err := template.RenderString(a.message, template.Data(actionCtx.Instance, actionCtx.Chain, actionCtx.Step))
	if err != nil {
		return Output{}, err
	}

	logger.With("action_type", "log").Log(ctx, a.level, message)

	return Output{}, nil
}

// SetMetadataActionFactory builds actions that write values into the instance metadata.
type SetMetadataActionFactory struct{}

func NewSetMetadataActionFactory() *SetMetadataActionFactory {
	return &SetMetadataActionFactory{}
}

func (*SetMetadataActionFactory) ID() string {
	return "set_metadata"
}

func (*SetMetadataActionFactory) Name() string {
	return "Set metadata"
}

func (*SetMetadataActionFactory) Description() string {
	return "Writes values into the instance metadata. String values are rendered as templates."
}

func (*SetMetadataActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"values": map[string]any{
				"type":          "object",
				"minProperties": 1,
			},
		},
		"required": []any{"values"},
	}
}

func (*SetMetadataActionFactory) Create(config map[string]any) (Action, error) {
	values, ok := config["values"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("values must be an object")
	}

	return &SetMetadataAction{values: values}, nil
}

type SetMetadataAction struct {
	values map[string]any
}

func (a *SetMetadataAction) Execute(_ context.Context, actionCtx ActionContext, logger *slog.Logger) (Output, error) {
	data := template.Data(actionCtx.Instance, actionCtx.Chain, actionCtx.Step)
	metadata := make(map[string]any, len(a.values))

	for key, value := range a.values {
		text, ok := value.(string)
		if !ok || !template.NeedsTemplating(text) {
			metadata[key] = value

			continue
		}

		rendered, err := template.Render(text, data)
		if err != nil {
			return Output{}, fmt.Errorf("failed to render metadata %q: %w", key, err)
		}

		metadata[key] = rendered
	}

	logger.Debug("metadata set", "action_type", "set_metadata", "keys", len(metadata))

	return Output{Metadata: metadata}, nil
}
