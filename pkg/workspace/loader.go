package workspace

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dukex/actflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// Decode parses a workspace from YAML (or JSON, which is valid YAML). The document
// uses the same field names as the stored JSON form.
func Decode(data []byte) (models.Workspace, error) {
	var doc map[string]any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return models.Workspace{}, fmt.Errorf("failed to parse workspace document: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return models.Workspace{}, fmt.Errorf("failed to normalize workspace document: %w", err)
	}

	var ws models.Workspace

	err = json.Unmarshal(raw, &ws)
	if err != nil {
		return models.Workspace{}, fmt.Errorf("failed to decode workspace document: %w", err)
	}

	return ws, nil
}

// LoadFile reads a workspace document from disk.
func LoadFile(path string) (models.Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Workspace{}, fmt.Errorf("failed to read workspace file %s: %w", path, err)
	}

	return Decode(data)
}
