package executor

import (
	"errors"
	"fmt"

	"github.com/dukex/actflow/pkg/models"
)

var (
	// ErrMissingUpstreamOutput is returned when a referenced node has no usable output.
	ErrMissingUpstreamOutput = errors.New("missing upstream output")

	// ErrCapabilityUnavailable is returned when no provider is wired for a content type.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrUsageLimitExceeded is the conventional rejection of a UsageLimiter.
	ErrUsageLimitExceeded = errors.New("usage limit exceeded")

	// ErrMissingTriggerValue is returned when a trigger output has no value in the run inputs.
	ErrMissingTriggerValue = errors.New("missing trigger value")
)

// ConfigError marks a failure caused by the workflow definition rather than by a provider.
// It aborts the whole run.
type ConfigError struct {
	NodeID string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error on node %s: %v", e.NodeID, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError checks if err aborts the run.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError

	return errors.As(err, &cfgErr)
}

func configError(nodeID string, err error) error {
	return &ConfigError{NodeID: nodeID, Err: err}
}

// StepError is an executor failure with a name recorded on the generation.
type StepError struct {
	Name string
	Err  error
}

func (e *StepError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(name string, err error) error {
	return &StepError{Name: name, Err: err}
}

func failureOf(err error) models.GenerationError {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return models.GenerationError{Name: stepErr.Name, Message: stepErr.Err.Error()}
	}

	if IsConfigError(err) {
		return models.GenerationError{Name: "ConfigurationError", Message: err.Error()}
	}

	return models.GenerationError{Name: "ExecutionError", Message: err.Error()}
}
