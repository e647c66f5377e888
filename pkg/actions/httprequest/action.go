// Package httprequest provides the http_request action for automated steps.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/stockflow/pkg/registry"
	"github.com/dukex/stockflow/pkg/template"
	"github.com/spf13/cast"
)

var (
	ErrHTTPServerError   = errors.New("server error during HTTP request")
	ErrUnexpectedStatus  = errors.New("unexpected HTTP status")
	ErrRetryAttemptsDone = errors.New("all retry attempts failed")
)

// Action performs an HTTP request with optional headers, body and retries.
type Action struct {
	URL       string
	Method    string
	Headers   map[string]string
	Body      string
	OutputKey string
	Retry     RetryConfig

	client *http.Client
}

// RetryConfig defines retry behavior. Delay is in milliseconds.
type RetryConfig struct {
	Attempts int
	Delay    int
}

func NewAction(config map[string]any, client *http.Client) (*Action, error) {
	url := cast.ToString(config["url"])
	if url == "" {
		return nil, errors.New("url is required")
	}

	method := strings.ToUpper(cast.ToString(config["method"]))
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)
	for key, value := range cast.ToStringMap(config["headers"]) {
		headers[key] = cast.ToString(value)
	}

	retry := RetryConfig{Attempts: 1}
	if retryConfig := cast.ToStringMap(config["retry"]); len(retryConfig) > 0 {
		retry.Attempts = max(cast.ToInt(retryConfig["attempts"]), 1)
		retry.Delay = cast.ToInt(retryConfig["delay"])
	}

	return &Action{
		URL:       url,
		Method:    method,
		Headers:   headers,
		Body:      cast.ToString(config["body"]),
		OutputKey: cast.ToString(config["output_key"]),
		Retry:     retry,
		client:    client,
	}, nil
}

// Execute sends the request, retrying transport failures and 5xx answers.
// Any final status outside 2xx fails the step.
func (a *Action) Execute(ctx context.Context, actionCtx registry.ActionContext, logger *slog.Logger) (registry.Output, error) {
	logger = logger.With("action_type", "http_request")
	data := template.Data(actionCtx.Instance, actionCtx.Chain, actionCtx.Step)

	var (
		resp    *http.Response
		lastErr error
	)

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "HTTP request retry", "attempt", attempt, "attempts", a.Retry.Attempts)

			select {
			case <-ctx.Done():
				return registry.Output{}, ctx.Err()
			case <-time.After(time.Duration(a.Retry.Delay) * time.Millisecond):
			}
		}

		req, err := a.buildRequest(ctx, data)
		if err != nil {
			return registry.Output{}, err
		}

		resp, err = a.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)
			resp = nil

			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < a.Retry.Attempts {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d", ErrHTTPServerError, resp.StatusCode)
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		return registry.Output{}, fmt.Errorf("%w: %w", ErrRetryAttemptsDone, lastErr)
	}

	return a.processResponse(ctx, resp, actionCtx, logger)
}

func (a *Action) buildRequest(ctx context.Context, data map[string]any) (*http.Request, error) {
	url, err := template.RenderString(a.URL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	var body io.Reader
	if a.Body != "" {
		rendered, err := template.RenderString(a.Body, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range a.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}

func (a *Action) processResponse(
	ctx context.Context,
	resp *http.Response,
	actionCtx registry.ActionContext,
	logger *slog.Logger,
) (registry.Output, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return registry.Output{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return registry.Output{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	key := a.OutputKey
	if key == "" && actionCtx.Step != nil {
		key = actionCtx.Step.ID + "_response"
	}

	return registry.Output{Metadata: map[string]any{
		key: map[string]any{
			"status_code": resp.StatusCode,
			"body":        body,
		},
	}}, nil
}
