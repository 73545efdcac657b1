package httprequest

import (
	"context"
	"fmt"

	"github.com/dukex/actflow/pkg/protocol"
)

// ActionFactory creates HTTP request actions.
type ActionFactory struct{}

// NewActionFactory creates a new ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create builds an Action from node parameters.
func (f *ActionFactory) Create(_ context.Context, actionID string, params map[string]string) (protocol.Action, error) {
	if actionID != "" && actionID != ActionIDRequest {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, actionID)
	}

	return NewAction(params)
}

func (f *ActionFactory) ID() string {
	return "http"
}

func (f *ActionFactory) Name() string {
	return "HTTP Request"
}

func (f *ActionFactory) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers and body."
}

// Schema returns the JSON schema of the node parameters. Every value is a string
// since parameters are rendered from templates.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"minLength":   1,
				"description": "The URL to send the HTTP request to. Supports {{nodeId:outputId}} references.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{lookup:userId}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "get", "post", "put", "delete", "patch", "head", "options"},
			},
			"headers": map[string]any{
				"type":        "string",
				"description": "JSON object of request headers.",
				"examples":    []string{`{"Content-Type": "application/json"}`},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. When empty, connected inputs are sent as a JSON object.",
			},
			"retryAttempts": map[string]any{
				"type":        "string",
				"pattern":     "^[0-9]$",
				"description": "Number of attempts on 5xx or transport failure",
				"default":     "1",
			},
			"retryDelay": map[string]any{
				"type":        "string",
				"pattern":     "^[0-9]+$",
				"description": "Delay between attempts in milliseconds",
				"default":     "0",
			},
			"timeout": map[string]any{
				"type":        "string",
				"pattern":     "^[0-9]+$",
				"description": "Request timeout in seconds",
				"default":     "30",
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
