// Package persistence provides the key-value storage abstraction used for runs, generations and indices.
package persistence

import (
	"context"
	"strings"
)

// Persistence is a flat key to JSON blob store. Keys are slash separated logical paths.
type Persistence interface {
	// Get returns the blob stored at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores the blob at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// List returns every key with the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ValidateKey rejects keys that could escape a storage root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}

	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return ErrInvalidKey
		}
	}

	return nil
}
