// Package web provides the HTTP handlers and request types for the run API.
package web

import "github.com/dukex/actflow/pkg/models"

// CreateRunRequest is the body of POST /workspaces/:workspaceId/runs.
type CreateRunRequest struct {
	StartNodeID string         `json:"startNodeId"          validate:"required"`
	Name        string         `json:"name,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Webhook     *WebhookInput  `json:"webhook,omitempty"`
	Start       bool           `json:"start,omitempty"`
}

// WebhookInput carries an inbound event already parsed by the caller.
type WebhookInput struct {
	Provider string         `json:"provider" validate:"required"`
	Event    string         `json:"event"    validate:"required"`
	Payload  map[string]any `json:"payload"`
}

// RetryRunRequest is the body of POST /runs/:id/retry.
type RetryRunRequest struct {
	FromNodeID string `json:"fromNodeId"      validate:"required"`
	Start      bool   `json:"start,omitempty"`
}

// SaveWorkspaceRequest is the body of PUT /workspaces/:workspaceId. The id comes from the path.
type SaveWorkspaceRequest struct {
	Name        string              `json:"name"`
	Nodes       []models.Node       `json:"nodes"`
	Connections []models.Connection `json:"connections"`
}

// ListRunsResponse wraps the runs of a workspace.
type ListRunsResponse struct {
	Runs  []models.Act `json:"runs"`
	Total int          `json:"total"`
}

// StartRunResponse acknowledges a run handed to the background.
type StartRunResponse struct {
	ID     string           `json:"id"`
	Status models.ActStatus `json:"status"`
}
