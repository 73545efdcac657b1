// Package file provides file-based persistence where every key is a JSON file under a root directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/actflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks the root directory exists, creating it on first use.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(fp.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create root directory: %w", err)
	}

	return nil
}

// Get reads the file stored for key.
func (fp *Persistence) Get(_ context.Context, key string) ([]byte, error) {
	filePath, err := fp.path(key)
	if err != nil {
		return nil, persistence.NewKeyError("Get", key, err)
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewKeyError("Get", key, persistence.ErrNotFound)
		}

		return nil, persistence.NewKeyError("Get", key, err)
	}

	return body, nil
}

// Set writes value through a temporary file and renames it into place.
func (fp *Persistence) Set(_ context.Context, key string, value []byte) error {
	filePath, err := fp.path(key)
	if err != nil {
		return persistence.NewKeyError("Set", key, err)
	}

	err = os.MkdirAll(filepath.Dir(filePath), 0750)
	if err != nil {
		return persistence.NewKeyError("Set", key, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return persistence.NewKeyError("Set", key, err)
	}

	_, err = tmp.Write(value)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return persistence.NewKeyError("Set", key, err)
	}

	err = tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewKeyError("Set", key, err)
	}

	err = os.Chmod(tmp.Name(), 0600)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewKeyError("Set", key, err)
	}

	err = os.Rename(tmp.Name(), filePath)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return persistence.NewKeyError("Set", key, err)
	}

	return nil
}

// List walks the root and returns keys starting with prefix.
func (fp *Persistence) List(_ context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)

	err := filepath.WalkDir(fp.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(fp.root, p)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}

	sort.Strings(keys)

	return keys, nil
}

// Delete removes the file stored for key.
func (fp *Persistence) Delete(_ context.Context, key string) error {
	filePath, err := fp.path(key)
	if err != nil {
		return persistence.NewKeyError("Delete", key, err)
	}

	err = os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewKeyError("Delete", key, err)
	}

	return nil
}

func (fp *Persistence) path(key string) (string, error) {
	err := persistence.ValidateKey(key)
	if err != nil {
		return "", err
	}

	return filepath.Join(fp.root, filepath.FromSlash(key)), nil
}
