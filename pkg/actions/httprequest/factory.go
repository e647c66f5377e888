package httprequest

import (
	"net/http"
	"time"

	"github.com/dukex/stockflow/pkg/registry"
)

const defaultTimeout = 30 * time.Second

// ActionFactory creates http_request actions.
type ActionFactory struct {
	client *http.Client
}

type FactoryOption func(*ActionFactory)

// WithClient replaces the HTTP client every created action uses.
func WithClient(client *http.Client) FactoryOption {
	return func(f *ActionFactory) {
		f.client = client
	}
}

func NewActionFactory(opts ...FactoryOption) *ActionFactory {
	factory := &ActionFactory{client: &http.Client{Timeout: defaultTimeout}}

	for _, opt := range opts {
		opt(factory)
	}

	return factory
}

func (f *ActionFactory) Create(config map[string]any) (registry.Action, error) {
	action, err := NewAction(config, f.client)
	if err != nil {
		return nil, err
	}

	return action, nil
}

func (*ActionFactory) ID() string {
	return "http_request"
}

func (*ActionFactory) Name() string {
	return "HTTP Request"
}

func (*ActionFactory) Description() string {
	return "Calls an external system over HTTP and stores the response in the instance metadata."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Target URL. Supports templating, e.g. https://erp.local/adjustments/{{ .instance.entity_id }}",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []any{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
			"output_key": map[string]any{
				"type":        "string",
				"description": "Metadata key the response is stored under; defaults to <step id>_response",
			},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
					"delay":    map[string]any{"type": "integer", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"required":             []any{"url"},
		"additionalProperties": false,
	}
}
