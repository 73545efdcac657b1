// Package workspace stores the editable graphs that runs are derived from.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrWorkspaceNotFound indicates no workspace exists for the id.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrInvalidWorkspace indicates a graph that cannot be saved.
	ErrInvalidWorkspace = errors.New("invalid workspace")
)

const (
	keyPrefix = "workspaces/"
	keySuffix = "/workspace.json"
)

// Key is where a workspace graph is stored.
func Key(id string) string {
	return keyPrefix + id + keySuffix
}

// IsNotFound checks if an error indicates a missing workspace.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound)
}

type Repository struct {
	persistence persistence.Persistence
	validator   *validator.Validate
	now         func() time.Time
}

func NewRepository(p persistence.Persistence) *Repository {
	return &Repository{
		persistence: p,
		validator:   validator.New(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get loads a workspace graph.
func (r *Repository) Get(ctx context.Context, id string) (models.Workspace, error) {
	data, err := r.persistence.Get(ctx, Key(id))
	if err != nil {
		if persistence.IsNotFound(err) {
			return models.Workspace{}, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
		}

		return models.Workspace{}, fmt.Errorf("failed to load workspace %s: %w", id, err)
	}

	var ws models.Workspace

	err = json.Unmarshal(data, &ws)
	if err != nil {
		return models.Workspace{}, fmt.Errorf("failed to decode workspace %s: %w", id, err)
	}

	return ws, nil
}

// Save validates and stores a workspace, keeping its original creation time.
func (r *Repository) Save(ctx context.Context, ws models.Workspace) (models.Workspace, error) {
	err := r.Validate(ws)
	if err != nil {
		return models.Workspace{}, err
	}

	now := r.now()
	ws.UpdatedAt = now

	existing, err := r.Get(ctx, ws.ID)

	switch {
	case err == nil:
		ws.CreatedAt = existing.CreatedAt
	case IsNotFound(err):
		if ws.CreatedAt.IsZero() {
			ws.CreatedAt = now
		}
	default:
		return models.Workspace{}, err
	}

	data, err := json.Marshal(ws)
	if err != nil {
		return models.Workspace{}, fmt.Errorf("failed to marshal workspace %s: %w", ws.ID, err)
	}

	err = r.persistence.Set(ctx, Key(ws.ID), data)
	if err != nil {
		return models.Workspace{}, fmt.Errorf("failed to store workspace %s: %w", ws.ID, err)
	}

	return ws, nil
}

// List returns the ids of every stored workspace.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	keys, err := r.persistence.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	ids := make([]string, 0)

	for _, k := range keys {
		if !strings.HasSuffix(k, keySuffix) {
			continue
		}

		id := strings.TrimSuffix(strings.TrimPrefix(k, keyPrefix), keySuffix)
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// Delete removes a workspace graph. Generations and acts are kept.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.persistence.Delete(ctx, Key(id))
	if err != nil {
		if persistence.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
		}

		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}

	return nil
}

// Validate checks struct tags, unique node ids and connection endpoints.
func (r *Repository) Validate(ws models.Workspace) error {
	err := r.validator.Struct(ws)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkspace, err)
	}

	seen := make(map[string]bool, len(ws.Nodes))

	for _, n := range ws.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidWorkspace, n.ID)
		}

		seen[n.ID] = true
	}

	for _, c := range ws.Connections {
		if _, _, ok := models.ParsePortID(c.SourcePort); !ok {
			return fmt.Errorf("%w: connection %s has malformed source port %q", ErrInvalidWorkspace, c.ID, c.SourcePort)
		}

		if _, _, ok := models.ParsePortID(c.TargetPort); !ok {
			return fmt.Errorf("%w: connection %s has malformed target port %q", ErrInvalidWorkspace, c.ID, c.TargetPort)
		}
	}

	return nil
}
