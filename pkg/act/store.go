package act

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actflow/internal/keylock"
	"github.com/dukex/actflow/pkg/index"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/patch"
	"github.com/dukex/actflow/pkg/persistence"
)

// RecordKey is where an act record is stored.
func RecordKey(actID string) string {
	return "acts/" + actID + "/act.json"
}

// WorkspaceIndexKey is the per-workspace list of acts.
func WorkspaceIndexKey(workspaceID string) string {
	return "acts/byWorkspace/" + workspaceID + ".json"
}

// IndexEntry is the compact per-workspace record of an act.
type IndexEntry struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	CreatedAt   time.Time `json:"createdAt"`
}

var indexEntrySchema = index.MustCompile("workspace-act", map[string]any{
	"type":     "object",
	"required": []any{"id", "workspaceId"},
	"properties": map[string]any{
		"id":          map[string]any{"type": "string", "minLength": 1},
		"workspaceId": map[string]any{"type": "string", "minLength": 1},
		"createdAt":   map[string]any{"type": "string", "format": "date-time"},
	},
})

// Store persists act records. Writes to one act are serialized.
type Store struct {
	store  persistence.Persistence
	index  *index.Index
	locks  *keylock.Locker
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(store persistence.Persistence, ix *index.Index, logger *slog.Logger, now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Store{
		store:  store,
		index:  ix,
		locks:  keylock.New(),
		logger: logger.With("module", "act_store"),
		now:    now,
	}
}

// Create writes a new act and lists it under its workspace.
func (s *Store) Create(ctx context.Context, act models.Act) error {
	unlock := s.locks.Lock(act.ID)
	defer unlock()

	err := s.write(ctx, act)
	if err != nil {
		return err
	}

	err = index.Append(ctx, s.index, WorkspaceIndexKey(act.WorkspaceID),
		IndexEntry{ID: act.ID, WorkspaceID: act.WorkspaceID, CreatedAt: act.CreatedAt}, indexEntrySchema)
	if err != nil {
		return fmt.Errorf("failed to index act %s: %w", act.ID, err)
	}

	return nil
}

// Get loads an act.
func (s *Store) Get(ctx context.Context, id string) (models.Act, error) {
	data, err := s.store.Get(ctx, RecordKey(id))
	if err != nil {
		if persistence.IsNotFound(err) {
			return models.Act{}, fmt.Errorf("%w: %s", ErrActNotFound, id)
		}

		return models.Act{}, fmt.Errorf("failed to load act %s: %w", id, err)
	}

	var act models.Act

	err = json.Unmarshal(data, &act)
	if err != nil {
		return models.Act{}, fmt.Errorf("failed to decode act %s: %w", id, err)
	}

	return act, nil
}

// Patch applies delta to the stored act and stamps updatedAt.
func (s *Store) Patch(ctx context.Context, id string, delta patch.Delta) (models.Act, error) {
	return s.update(ctx, id, func(act models.Act) (models.Act, error) {
		return patch.ApplyTo(act, patch.Merge(delta, patch.Delta{
			"updatedAt": patch.SetString(s.now().Format(time.RFC3339Nano)),
		}))
	})
}

// Annotate appends an entry to the act log.
func (s *Store) Annotate(ctx context.Context, id string, annotation models.Annotation) (models.Act, error) {
	return s.update(ctx, id, func(act models.Act) (models.Act, error) {
		if annotation.CreatedAt.IsZero() {
			annotation.CreatedAt = s.now()
		}

		act.Annotations = append(act.Annotations, annotation)
		act.UpdatedAt = s.now()

		return act, nil
	})
}

// ListByWorkspace loads the acts indexed for a workspace, oldest first. Indexed
// acts whose record is gone are skipped.
func (s *Store) ListByWorkspace(ctx context.Context, workspaceID string) ([]models.Act, error) {
	entries := index.Read[IndexEntry](ctx, s.index, WorkspaceIndexKey(workspaceID), indexEntrySchema)
	acts := make([]models.Act, 0, len(entries))

	for _, e := range entries {
		act, err := s.Get(ctx, e.ID)
		if err != nil {
			if IsNotFound(err) {
				s.logger.WarnContext(ctx, "Indexed act is missing", "act_id", e.ID, "workspace_id", workspaceID)

				continue
			}

			return nil, err
		}

		acts = append(acts, act)
	}

	return acts, nil
}

func (s *Store) update(ctx context.Context, id string, fn func(models.Act) (models.Act, error)) (models.Act, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return models.Act{}, err
	}

	next, err := fn(current)
	if err != nil {
		return current, fmt.Errorf("failed to update act %s: %w", id, err)
	}

	err = s.write(ctx, next)
	if err != nil {
		return current, err
	}

	return next, nil
}

func (s *Store) write(ctx context.Context, act models.Act) error {
	data, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("failed to marshal act %s: %w", act.ID, err)
	}

	err = s.store.Set(ctx, RecordKey(act.ID), data)
	if err != nil {
		return fmt.Errorf("failed to store act %s: %w", act.ID, err)
	}

	return nil
}
