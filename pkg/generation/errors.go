package generation

import (
	"errors"

	"github.com/dukex/actflow/pkg/models"
)

var (
	// ErrGenerationNotFound indicates no generation exists for the id.
	ErrGenerationNotFound = errors.New("generation not found")

	// ErrUnknownOrigin indicates an origin type without a storage layout.
	ErrUnknownOrigin = errors.New("unknown generation origin")

	// ErrMissingWorkspace indicates an origin that cannot be tied to a workspace.
	ErrMissingWorkspace = errors.New("generation origin has no workspace")
)

// IsNotFound checks if an error indicates a missing generation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGenerationNotFound)
}

// IsInvalidTransition checks if an error is a rejected status change.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, models.ErrInvalidTransition)
}
