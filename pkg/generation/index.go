package generation

import (
	"time"

	"github.com/dukex/actflow/pkg/index"
	"github.com/dukex/actflow/pkg/models"
)

// IndexEntry is the compact per-node record of a generation.
type IndexEntry struct {
	ID          string                  `json:"id"`
	NodeID      string                  `json:"nodeId"`
	Status      models.GenerationStatus `json:"status"`
	CreatedAt   time.Time               `json:"createdAt"`
	QueuedAt    *time.Time              `json:"queuedAt,omitempty"`
	StartedAt   *time.Time              `json:"startedAt,omitempty"`
	CompletedAt *time.Time              `json:"completedAt,omitempty"`
	FailedAt    *time.Time              `json:"failedAt,omitempty"`
	CancelledAt *time.Time              `json:"cancelledAt,omitempty"`
}

type locator struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

var timestamp = map[string]any{"type": "string", "format": "date-time"}

var indexEntrySchema = index.MustCompile("node-generation", map[string]any{
	"type":     "object",
	"required": []any{"id", "nodeId", "status", "createdAt"},
	"properties": map[string]any{
		"id":     map[string]any{"type": "string", "minLength": 1},
		"nodeId": map[string]any{"type": "string", "minLength": 1},
		"status": map[string]any{
			"type": "string",
			"enum": []any{"created", "queued", "running", "completed", "failed", "cancelled"},
		},
		"createdAt":   timestamp,
		"queuedAt":    timestamp,
		"startedAt":   timestamp,
		"completedAt": timestamp,
		"failedAt":    timestamp,
		"cancelledAt": timestamp,
	},
})

func entryFor(g models.Generation) IndexEntry {
	return IndexEntry{
		ID:          g.ID,
		NodeID:      g.NodeID(),
		Status:      g.Status,
		CreatedAt:   g.CreatedAt,
		QueuedAt:    g.QueuedAt,
		StartedAt:   g.StartedAt,
		CompletedAt: g.CompletedAt,
		FailedAt:    g.FailedAt,
		CancelledAt: g.CancelledAt,
	}
}
