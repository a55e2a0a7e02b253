package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const sqlEnsureSchema = `
    CREATE TABLE IF NOT EXISTS pilot_kv (
        key        TEXT PRIMARY KEY,
        value      JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    );
`

const sqlUpsert = `
    INSERT INTO pilot_kv (key, value, updated_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (key) DO UPDATE SET
        value = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;
`

// Store provides a PostgreSQL implementation of the schemas.KVStore interface.
// Values are opaque JSON documents; callers own the key namespace.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance, verifies the connection and ensures the
// backing table exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlEnsureSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure kv schema: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Get returns the value for key, with found=false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT value FROM pilot_kv WHERE key = $1`, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query key %q: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
		}
		return nil, false, nil
	}

	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, false, fmt.Errorf("failed to scan key %q: %w", key, err)
	}
	return json.RawMessage(raw), true, nil
}

// Set upserts the value for key.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	if len(value) == 0 || string(value) == "null" {
		value = json.RawMessage("{}")
	}

	if _, err := s.pool.Exec(ctx, sqlUpsert, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert key %q: %w", key, err)
	}
	return nil
}

// List returns every key under the given prefix, sorted, so callers can scan
// a namespace deterministically.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM pilot_kv WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan listed key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list prefix %q: %w", prefix, err)
	}
	return keys, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pilot_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Clear truncates the whole store.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pilot_kv`); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

// TxSet writes several keys atomically. The memory layer records a journal
// entry and its translation update through it so both land together.
func (s *Store) TxSet(ctx context.Context, entries map[string]json.RawMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := time.Now().UTC()
	for key, value := range entries {
		if len(value) == 0 || string(value) == "null" {
			value = json.RawMessage("{}")
		}
		if _, err := tx.Exec(ctx, sqlUpsert, key, value, now); err != nil {
			return fmt.Errorf("failed to upsert key %q in transaction: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
