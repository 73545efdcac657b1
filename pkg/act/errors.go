package act

import "errors"

var (
	// ErrActNotFound indicates no act exists for the id.
	ErrActNotFound = errors.New("act not found")

	// ErrActFinished is returned when running or cancelling an act in a terminal status.
	ErrActFinished = errors.New("act already finished")

	// ErrActRunning is returned when starting an act that is already being driven.
	ErrActRunning = errors.New("act already running")

	// ErrRetryUnavailable is returned when the retried node is not a step of the previous act
	// or an upstream node has no completed generation to reuse.
	ErrRetryUnavailable = errors.New("retry unavailable")
)

// IsNotFound checks if an error indicates a missing act.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrActNotFound)
}
