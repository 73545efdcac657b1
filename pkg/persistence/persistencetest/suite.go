// Package persistencetest holds the behaviour every persistence backend must share.
package persistencetest

import (
	"context"
	"testing"

	"github.com/dukex/actflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a backend produced by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) persistence.Persistence) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(t.Context(), "acts/missing/act.json")
		require.Error(t, err)
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("set then get", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		require.NoError(t, store.Set(ctx, "acts/a1/act.json", []byte(`{"id":"a1"}`)))

		value, err := store.Get(ctx, "acts/a1/act.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"a1"}`, string(value))
	})

	t.Run("set overwrites", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		require.NoError(t, store.Set(ctx, "k/v.json", []byte(`{"n":1}`)))
		require.NoError(t, store.Set(ctx, "k/v.json", []byte(`{"n":2}`)))

		value, err := store.Get(ctx, "k/v.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(value))
	})

	t.Run("list by prefix", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		for _, key := range []string{
			"acts/a2/act.json",
			"acts/a1/act.json",
			"acts/a1/generations/g1/generation.json",
			"workspaces/w1/workspace.json",
		} {
			require.NoError(t, store.Set(ctx, key, []byte(`{}`)))
		}

		keys, err := store.List(ctx, "acts/")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"acts/a1/act.json",
			"acts/a1/generations/g1/generation.json",
			"acts/a2/act.json",
		}, keys)

		keys, err = store.List(ctx, "nothing/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		require.NoError(t, store.Set(ctx, "acts/a1/act.json", []byte(`{}`)))
		require.NoError(t, store.Delete(ctx, "acts/a1/act.json"))

		_, err := store.Get(ctx, "acts/a1/act.json")
		assert.True(t, persistence.IsNotFound(err))

		keys, err := store.List(ctx, "acts/")
		require.NoError(t, err)
		assert.Empty(t, keys)

		assert.NoError(t, store.Delete(ctx, "acts/a1/act.json"), "deleting a missing key is not an error")
	})

	t.Run("rejects unsafe keys", func(t *testing.T) {
		store := newStore(t)

		err := store.Set(t.Context(), "../escape.json", []byte(`{}`))
		assert.ErrorIs(t, err, persistence.ErrInvalidKey)
	})

	t.Run("health check", func(t *testing.T) {
		store := newStore(t)

		assert.NoError(t, store.HealthCheck(context.Background()))
	})
}
