// Package index maintains advisory JSON list indices on top of a persistence backend.
//
// Writes to the same path are serialized inside one process. Across processes the
// read-then-write is last-writer-wins; indices are never the authoritative record.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/actflow/internal/keylock"
	"github.com/dukex/actflow/pkg/persistence"
)

// Index reads and writes JSON lists stored at persistence keys.
type Index struct {
	store  persistence.Persistence
	logger *slog.Logger
	locks  *keylock.Locker
}

// New creates an index layer over store.
func New(store persistence.Persistence, logger *slog.Logger) *Index {
	return &Index{
		store:  store,
		logger: logger.With("module", "index"),
		locks:  keylock.New(),
	}
}

// Append validates item then appends it to the list at path.
func Append[T any](ctx context.Context, ix *Index, path string, item T, schema *Schema) error {
	return Upsert(ctx, ix, path, item, schema, nil)
}

// Upsert validates item then replaces the first element for which match returns true,
// or appends when nothing matches. A nil match always appends.
func Upsert[T any](ctx context.Context, ix *Index, path string, item T, schema *Schema, match func(T) bool) error {
	err := schema.Validate(item)
	if err != nil {
		return err
	}

	unlock := ix.locks.Lock(path)
	defer unlock()

	items, err := readForWrite[T](ctx, ix, path, schema)
	if err != nil {
		return err
	}

	replaced := false

	if match != nil {
		for i, existing := range items {
			if match(existing) {
				items[i] = item
				replaced = true

				break
			}
		}
	}

	if !replaced {
		items = append(items, item)
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal index %s: %w", path, err)
	}

	err = ix.store.Set(ctx, path, data)
	if err != nil {
		return fmt.Errorf("failed to write index %s: %w", path, err)
	}

	return nil
}

// Read returns the items at path that satisfy schema. Missing or malformed data
// yields an empty list; invalid items are dropped and logged.
func Read[T any](ctx context.Context, ix *Index, path string, schema *Schema) []T {
	items, err := decode[T](ctx, ix, path, schema)
	if err != nil {
		if !persistence.IsNotFound(err) {
			ix.logger.WarnContext(ctx, "Index unreadable, returning empty list", "path", path, "error", err)
		}

		return []T{}
	}

	return items
}

func readForWrite[T any](ctx context.Context, ix *Index, path string, schema *Schema) ([]T, error) {
	items, err := decode[T](ctx, ix, path, schema)
	if err == nil {
		return items, nil
	}

	if persistence.IsNotFound(err) {
		return []T{}, nil
	}

	var malformed *malformedError
	if errors.As(err, &malformed) {
		ix.logger.WarnContext(ctx, "Replacing malformed index", "path", path, "error", err)

		return []T{}, nil
	}

	return nil, fmt.Errorf("failed to read index %s: %w", path, err)
}

type malformedError struct {
	err error
}

func (e *malformedError) Error() string {
	return "malformed index: " + e.err.Error()
}

func decode[T any](ctx context.Context, ix *Index, path string, schema *Schema) ([]T, error) {
	data, err := ix.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage

	err = json.Unmarshal(data, &raws)
	if err != nil {
		return nil, &malformedError{err: err}
	}

	items := make([]T, 0, len(raws))

	for i, raw := range raws {
		err = schema.validateBytes(raw)
		if err != nil {
			ix.logger.WarnContext(ctx, "Dropping invalid index item", "path", path, "position", i, "error", err)

			continue
		}

		var item T

		err = json.Unmarshal(raw, &item)
		if err != nil {
			ix.logger.WarnContext(ctx, "Dropping undecodable index item", "path", path, "position", i, "error", err)

			continue
		}

		items = append(items, item)
	}

	return items, nil
}
