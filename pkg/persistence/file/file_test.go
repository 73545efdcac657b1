package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	p := NewPersistence("/tmp/test")
	fp := p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)

	p = NewPersistence("file:///tmp/test")
	fp = p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_Conformance(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return NewPersistence(t.TempDir())
	})
}

func TestPersistence_SetWritesFileUnderRoot(t *testing.T) {
	testDir := t.TempDir()
	p := NewPersistence(testDir)

	err := p.Set(t.Context(), "acts/a1/act.json", []byte(`{"id":"a1"}`))
	require.NoError(t, err)

	filePath := filepath.Join(testDir, "acts", "a1", "act.json")
	assert.FileExists(t, filePath)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestPersistence_ListMissingRoot(t *testing.T) {
	p := NewPersistence(filepath.Join(t.TempDir(), "not-created"))

	keys, err := p.List(t.Context(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
