// Package generation manages the lifecycle records of single node executions.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actflow/internal/keylock"
	"github.com/dukex/actflow/pkg/index"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Manager persists generations and keeps the per-node index current.
type Manager struct {
	store     persistence.Persistence
	index     *index.Index
	logger    *slog.Logger
	validator *validator.Validate
	locks     *keylock.Locker
	now       func() time.Time
	newID     func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source used to stamp transitions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator replaces the generation id generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// NewManager creates a generation manager.
func NewManager(store persistence.Persistence, ix *index.Index, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		index:     ix,
		logger:    logger.With("module", "generation_manager"),
		validator: validator.New(),
		locks:     keylock.New(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return "gnr-" + uuid.New().String() },
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Create stores a new generation in the created state.
func (m *Manager) Create(ctx context.Context, genCtx models.GenerationContext) (models.Generation, error) {
	err := m.validator.Struct(genCtx.Origin)
	if err != nil {
		return models.Generation{}, fmt.Errorf("invalid generation origin: %w", err)
	}

	if genCtx.WorkspaceID() == "" {
		return models.Generation{}, ErrMissingWorkspace
	}

	g := models.NewGeneration(m.newID(), genCtx, m.now())

	key, err := RecordKey(genCtx.Origin, g.ID)
	if err != nil {
		return models.Generation{}, err
	}

	err = m.writeJSON(ctx, LocatorKey(g.ID), locator{ID: g.ID, Key: key})
	if err != nil {
		return models.Generation{}, err
	}

	err = m.persist(ctx, key, g)
	if err != nil {
		return models.Generation{}, err
	}

	m.logger.DebugContext(ctx, "Generation created", "generation_id", g.ID, "node_id", g.NodeID())

	return g, nil
}

// Enqueue moves a generation from created to queued.
func (m *Manager) Enqueue(ctx context.Context, id string) (models.Generation, error) {
	return m.transition(ctx, id, func(g models.Generation, now time.Time) (models.Generation, error) {
		return g.Queue(now)
	})
}

// Start moves a generation from queued to running.
func (m *Manager) Start(ctx context.Context, id string) (models.Generation, error) {
	return m.transition(ctx, id, func(g models.Generation, now time.Time) (models.Generation, error) {
		return g.Start(now)
	})
}

// Complete finishes a running generation.
func (m *Manager) Complete(ctx context.Context, id string, outputs []models.GenerationOutput, usage *models.Usage) (models.Generation, error) {
	return m.transition(ctx, id, func(g models.Generation, now time.Time) (models.Generation, error) {
		return g.Complete(now, outputs, usage)
	})
}

// Fail marks a running generation as failed.
func (m *Manager) Fail(ctx context.Context, id string, failure models.GenerationError) (models.Generation, error) {
	return m.transition(ctx, id, func(g models.Generation, now time.Time) (models.Generation, error) {
		return g.Fail(now, failure)
	})
}

// Cancel stops a generation that has not reached a terminal state.
func (m *Manager) Cancel(ctx context.Context, id string) (models.Generation, error) {
	return m.transition(ctx, id, func(g models.Generation, now time.Time) (models.Generation, error) {
		return g.Cancel(now)
	})
}

// Get loads a generation by id.
func (m *Manager) Get(ctx context.Context, id string) (models.Generation, error) {
	key, err := m.locate(ctx, id)
	if err != nil {
		return models.Generation{}, err
	}

	return m.load(ctx, id, key)
}

// ListByNode returns the index entries of a node, oldest first.
func (m *Manager) ListByNode(ctx context.Context, workspaceID, nodeID string) []IndexEntry {
	return index.Read[IndexEntry](ctx, m.index, NodeIndexKey(workspaceID, nodeID), indexEntrySchema)
}

// LatestCompleted returns the most recently completed generation of a node.
func (m *Manager) LatestCompleted(ctx context.Context, workspaceID, nodeID string) (models.Generation, bool, error) {
	var latest *IndexEntry

	entries := m.ListByNode(ctx, workspaceID, nodeID)
	for i := range entries {
		e := entries[i]
		if e.Status != models.GenerationStatusCompleted || e.CompletedAt == nil {
			continue
		}

		if latest == nil || !e.CompletedAt.Before(*latest.CompletedAt) {
			latest = &e
		}
	}

	if latest == nil {
		return models.Generation{}, false, nil
	}

	g, err := m.Get(ctx, latest.ID)
	if err != nil {
		if IsNotFound(err) {
			m.logger.WarnContext(ctx, "Indexed generation is missing", "generation_id", latest.ID, "node_id", nodeID)

			return models.Generation{}, false, nil
		}

		return models.Generation{}, false, err
	}

	return g, true, nil
}

func (m *Manager) transition(ctx context.Context, id string, fn func(models.Generation, time.Time) (models.Generation, error)) (models.Generation, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	key, err := m.locate(ctx, id)
	if err != nil {
		return models.Generation{}, err
	}

	current, err := m.load(ctx, id, key)
	if err != nil {
		return models.Generation{}, err
	}

	next, err := fn(current, m.now())
	if err != nil {
		return current, err
	}

	err = m.persist(ctx, key, next)
	if err != nil {
		return current, err
	}

	m.logger.DebugContext(ctx, "Generation transitioned",
		"generation_id", id,
		"from", current.Status,
		"to", next.Status)

	return next, nil
}

// persist writes the full record then upserts the node index entry.
func (m *Manager) persist(ctx context.Context, key string, g models.Generation) error {
	err := m.writeJSON(ctx, key, g)
	if err != nil {
		return err
	}

	entry := entryFor(g)

	err = index.Upsert(ctx, m.index, NodeIndexKey(g.Context.WorkspaceID(), g.NodeID()), entry, indexEntrySchema,
		func(existing IndexEntry) bool { return existing.ID == entry.ID })
	if err != nil {
		return fmt.Errorf("failed to index generation %s: %w", g.ID, err)
	}

	return nil
}

func (m *Manager) locate(ctx context.Context, id string) (string, error) {
	data, err := m.store.Get(ctx, LocatorKey(id))
	if err != nil {
		if persistence.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrGenerationNotFound, id)
		}

		return "", fmt.Errorf("failed to locate generation %s: %w", id, err)
	}

	var loc locator

	err = json.Unmarshal(data, &loc)
	if err != nil {
		return "", fmt.Errorf("failed to decode locator of generation %s: %w", id, err)
	}

	return loc.Key, nil
}

func (m *Manager) load(ctx context.Context, id, key string) (models.Generation, error) {
	data, err := m.store.Get(ctx, key)
	if err != nil {
		if persistence.IsNotFound(err) {
			return models.Generation{}, fmt.Errorf("%w: %s", ErrGenerationNotFound, id)
		}

		return models.Generation{}, fmt.Errorf("failed to load generation %s: %w", id, err)
	}

	var g models.Generation

	err = json.Unmarshal(data, &g)
	if err != nil {
		return models.Generation{}, fmt.Errorf("failed to decode generation %s: %w", id, err)
	}

	return g, nil
}

func (m *Manager) writeJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	err = m.store.Set(ctx, key, data)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}

	return nil
}
