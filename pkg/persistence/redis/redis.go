// Package redis provides a Redis persistence backend. Values live under namespaced
// keys and a sorted set of logical keys supports prefix listing.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/actflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace = "actflow"
	keysSuffix       = ":keys"
)

// Persistence implements persistence.Persistence on top of a Redis client.
type Persistence struct {
	client    redis.UniversalClient
	logger    *slog.Logger
	namespace string
}

// NewPersistence parses a redis:// URL, connects and pings the server.
func NewPersistence(ctx context.Context, logger *slog.Logger, url string) (*Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to redis", "addr", opts.Addr, "db", opts.DB)

	return NewPersistenceWithClient(client, logger, defaultNamespace), nil
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(client redis.UniversalClient, logger *slog.Logger, namespace string) *Persistence {
	if namespace == "" {
		namespace = defaultNamespace
	}

	return &Persistence{
		client:    client,
		logger:    logger,
		namespace: namespace,
	}
}

func (p *Persistence) valueKey(key string) string {
	return p.namespace + ":v:" + key
}

func (p *Persistence) indexKey() string {
	return p.namespace + keysSuffix
}

// Get returns the value stored at key.
func (p *Persistence) Get(ctx context.Context, key string) ([]byte, error) {
	err := persistence.ValidateKey(key)
	if err != nil {
		return nil, persistence.NewKeyError("Get", key, err)
	}

	value, err := p.client.Get(ctx, p.valueKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewKeyError("Get", key, persistence.ErrNotFound)
		}

		return nil, persistence.NewKeyError("Get", key, err)
	}

	return value, nil
}

// Set writes the value and registers the key in the listing index atomically.
func (p *Persistence) Set(ctx context.Context, key string, value []byte) error {
	err := persistence.ValidateKey(key)
	if err != nil {
		return persistence.NewKeyError("Set", key, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.valueKey(key), value, 0)
	pipe.ZAdd(ctx, p.indexKey(), redis.Z{Score: 0, Member: key})

	_, err = pipe.Exec(ctx)
	if err != nil {
		return persistence.NewKeyError("Set", key, err)
	}

	return nil
}

// List uses a lexicographic range over the key index.
func (p *Persistence) List(ctx context.Context, prefix string) ([]string, error) {
	lexRange := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		lexRange = &redis.ZRangeBy{Min: "[" + prefix, Max: "[" + prefix + "\xff"}
	}

	keys, err := p.client.ZRangeByLex(ctx, p.indexKey(), lexRange).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}

	out := make([]string, 0, len(keys))

	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}

	return out, nil
}

// Delete removes the value and its index entry.
func (p *Persistence) Delete(ctx context.Context, key string) error {
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, p.valueKey(key))
	pipe.ZRem(ctx, p.indexKey(), key)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return persistence.NewKeyError("Delete", key, err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
