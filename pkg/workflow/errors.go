package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle indicates operation nodes that can never become ready.
	ErrCycle = errors.New("workflow contains a cycle")

	// ErrStartNodeNotFound indicates the start node is absent from the node set.
	ErrStartNodeNotFound = errors.New("start node not found")

	// ErrNoOperationNodes indicates the start node's component has nothing to run.
	ErrNoOperationNodes = errors.New("no operation nodes connected to start node")
)

// BuildError wraps builder failures with the start node and the nodes involved.
type BuildError struct {
	StartNodeID string
	NodeIDs     []string
	Err         error
}

func (e *BuildError) Error() string {
	if len(e.NodeIDs) > 0 {
		return fmt.Sprintf("failed to build workflow from %s: %v (nodes: %s)", e.StartNodeID, e.Err, strings.Join(e.NodeIDs, ", "))
	}

	return fmt.Sprintf("failed to build workflow from %s: %v", e.StartNodeID, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// IsCycle checks if an error reports a dependency cycle.
func IsCycle(err error) bool {
	return errors.Is(err, ErrCycle)
}
