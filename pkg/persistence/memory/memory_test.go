package memory_test

import (
	"testing"

	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/persistence/memory"
	"github.com/dukex/actflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence_Conformance(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return memory.NewPersistence()
	})
}

func TestPersistence_ValuesAreCopied(t *testing.T) {
	store := memory.NewPersistence()
	value := []byte(`{"n":1}`)

	require.NoError(t, store.Set(t.Context(), "k/v.json", value))
	value[0] = 'x'

	got, err := store.Get(t.Context(), "k/v.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(got))
}
