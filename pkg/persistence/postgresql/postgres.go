// Package postgresql provides a PostgreSQL persistence backend storing JSON blobs in a key-value table.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:     database,
		logger: logger,
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Get returns the stored JSON document.
func (p *Persistence) Get(ctx context.Context, key string) ([]byte, error) {
	err := persistence.ValidateKey(key)
	if err != nil {
		return nil, persistence.NewKeyError("Get", key, err)
	}

	var value []byte

	err = p.db.QueryRowContext(ctx, "SELECT value FROM kv_entries WHERE key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewKeyError("Get", key, persistence.ErrNotFound)
		}

		return nil, persistence.NewKeyError("Get", key, err)
	}

	return value, nil
}

// Set upserts the JSON document.
func (p *Persistence) Set(ctx context.Context, key string, value []byte) error {
	err := persistence.ValidateKey(key)
	if err != nil {
		return persistence.NewKeyError("Set", key, err)
	}

	query := `
		INSERT INTO kv_entries (key, value, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	_, err = p.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return persistence.NewKeyError("Set", key, err)
	}

	return nil
}

// List returns keys with the given prefix.
func (p *Persistence) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE key LIKE $1 ESCAPE '\' ORDER BY key COLLATE "C"`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}

	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)

	for rows.Next() {
		var key string

		err = rows.Scan(&key)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}

		keys = append(keys, key)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}

	return keys, nil
}

// Delete removes the row for key.
func (p *Persistence) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE key = $1", key)
	if err != nil {
		return persistence.NewKeyError("Delete", key, err)
	}

	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

	return r.Replace(s)
}
