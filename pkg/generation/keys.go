package generation

import (
	"fmt"

	"github.com/dukex/actflow/pkg/models"
)

// RecordKey is where the full generation record lives; it depends on who produced it.
func RecordKey(origin models.Origin, id string) (string, error) {
	switch origin.Type {
	case models.OriginTypeWorkspace:
		return fmt.Sprintf("workspaces/%s/generations/%s/generation.json", origin.ID, id), nil
	case models.OriginTypeRun:
		return fmt.Sprintf("acts/%s/generations/%s/generation.json", origin.ID, id), nil
	case models.OriginTypeGitHubApp:
		return fmt.Sprintf("github-apps/%s/generations/%s/generation.json", origin.ID, id), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOrigin, origin.Type)
	}
}

// LocatorKey maps a generation id to its record key.
func LocatorKey(id string) string {
	return fmt.Sprintf("generations/locator/%s.json", id)
}

// NodeIndexKey lists the generations of one node in a workspace.
func NodeIndexKey(workspaceID, nodeID string) string {
	return fmt.Sprintf("workspaces/%s/node-generations/%s.json", workspaceID, nodeID)
}
