package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/actflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		err := persistence.NewKeyError("Get", "acts/a1/act.json", persistence.ErrNotFound)

		assert.True(t, persistence.IsNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrNotFound))
		assert.False(t, persistence.IsNotFound(errors.New("boom")))
	})

	t.Run("key error contains context", func(t *testing.T) {
		err := persistence.NewKeyError("Set", "acts/a1/act.json", persistence.ErrInvalidKey)

		assert.Contains(t, err.Error(), "Set")
		assert.Contains(t, err.Error(), "acts/a1/act.json")
		assert.Contains(t, err.Error(), "invalid key")
	})
}

func TestValidateKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		key   string
		valid bool
	}{
		{"acts/a1/act.json", true},
		{"workspaces/w/node-generations/n.json", true},
		{"", false},
		{"/etc/passwd", false},
		{"acts/../../etc", false},
		{"acts//act.json", false},
		{"acts\\act.json", false},
	}

	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			err := persistence.ValidateKey(tc.key)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, persistence.ErrInvalidKey)
			}
		})
	}
}
