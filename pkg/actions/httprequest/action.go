// Package httprequest provides the http action provider.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/actflow/pkg/executor"
)

const (
	// ActionIDRequest is the only action this provider offers.
	ActionIDRequest = "request"

	defaultTimeoutSeconds = 30
)

var (
	// ErrHTTPRequestURLInvalid is returned when the url parameter is missing or malformed.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPHeadersInvalid is returned when the headers parameter is not a JSON object of strings.
	ErrHTTPHeadersInvalid = errors.New("invalid HTTP request headers")
	// ErrHTTPServerError is returned when the server keeps answering with a 5xx status.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrHTTPStatus is returned for a final response with an error status.
	ErrHTTPStatus = errors.New("HTTP request returned an error status")
	// ErrUnsupportedAction is returned for an action id this provider does not offer.
	ErrUnsupportedAction = errors.New("unsupported http action")
)

// Action performs an HTTP request with optional retries.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// NewAction creates an Action from rendered node parameters.
func NewAction(params map[string]string) (*Action, error) {
	url := strings.TrimSpace(params["url"])
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: %q", ErrHTTPRequestURLInvalid, url)
	}

	method := strings.ToUpper(params["method"])
	if method == "" {
		method = http.MethodGet
	}

	headers := map[string]string{}

	if raw := params["headers"]; raw != "" {
		err := json.Unmarshal([]byte(raw), &headers)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHTTPHeadersInvalid, err)
		}
	}

	retry := RetryConfig{
		Attempts: max(intParam(params, "retryAttempts", 1), 1),
		Delay:    time.Duration(intParam(params, "retryDelay", 0)) * time.Millisecond,
	}

	return &Action{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    params["body"],
		Timeout: time.Duration(intParam(params, "timeout", defaultTimeoutSeconds)) * time.Second,
		Retry:   retry,
	}, nil
}

func intParam(params map[string]string, name string, fallback int) int {
	v, err := strconv.Atoi(params[name])
	if err != nil {
		return fallback
	}

	return v
}

// Execute performs the request. Connected inputs become the JSON body when no body is set.
func (a *Action) Execute(ctx context.Context, inputs map[string]string, logger *slog.Logger) (executor.ActionResult, error) {
	logger = logger.With("module", "http_request_action", "method", a.Method, "url", a.URL)
	logger.InfoContext(ctx, "Executing HTTP request")

	body, err := a.requestBody(inputs)
	if err != nil {
		return executor.ActionResult{}, err
	}

	client := &http.Client{Timeout: a.Timeout}

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "attempts", a.Retry.Attempts)

			select {
			case <-ctx.Done():
				return executor.ActionResult{}, ctx.Err()
			case <-time.After(a.Retry.Delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, strings.NewReader(body))
		if err != nil {
			return executor.ActionResult{}, fmt.Errorf("failed to create http request: %w", err)
		}

		for k, v := range a.Headers {
			req.Header.Set(k, v)
		}

		resp, err = client.Do(req)
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
		return executor.ActionResult{}, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return processResponse(ctx, resp, logger)
}

func (a *Action) requestBody(inputs map[string]string) (string, error) {
	if a.Body != "" || len(inputs) == 0 || a.Method == http.MethodGet || a.Method == http.MethodHead {
		return a.Body, nil
	}

	data, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("failed to encode inputs: %w", err)
	}

	return string(data), nil
}

func processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (executor.ActionResult, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return executor.ActionResult{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	if resp.StatusCode >= http.StatusBadRequest {
		return executor.ActionResult{}, fmt.Errorf("%w: %d %s", ErrHTTPStatus, resp.StatusCode, truncate(string(bodyBytes), 200))
	}

	return executor.ActionResult{
		Content: string(bodyBytes),
		Fields: map[string]any{
			"statusCode": resp.StatusCode,
			"body":       body,
			"headers":    headers,
		},
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
