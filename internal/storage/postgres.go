// File: internal/storage/postgres.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CursorStore persists changefeed cursor positions by name.
type CursorStore interface {
	Load(ctx context.Context, name string) (int64, bool, error) // Returns position, found boolean, error
	Save(ctx context.Context, name string, since int64) error
	Ping(ctx context.Context) error
}

// querier is the part of *pgxpool.Pool the store uses.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

const schema = `
CREATE TABLE IF NOT EXISTS changefeed_cursor (
    name         TEXT PRIMARY KEY,
    last_seq     BIGINT NOT NULL,
    last_updated TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// PostgresStore keeps cursor positions in the changefeed_cursor table.
type PostgresStore struct {
	db querier
}

// Connect opens a pgx pool for databaseURL and verifies it answers.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates a new store on pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("database pool cannot be nil")
	}
	return &PostgresStore{db: pool}
}

// EnsureSchema creates the cursor table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create changefeed_cursor table: %w", err)
	}
	return nil
}

// Load retrieves the saved position for name.
func (s *PostgresStore) Load(ctx context.Context, name string) (int64, bool, error) {
	query := `SELECT last_seq FROM changefeed_cursor WHERE name = $1`

	var since int64
	slog.DebugContext(ctx, "Querying changefeed cursor", "name", name)
	err := s.db.QueryRow(ctx, query, name).Scan(&since)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			slog.DebugContext(ctx, "No changefeed cursor saved", "name", name)
			return 0, false, nil // Not found, but not an error
		}
		slog.ErrorContext(ctx, "Error querying changefeed cursor", "name", name, "error", err)
		return 0, false, fmt.Errorf("failed to query changefeed cursor: %w", err)
	}
	return since, true, nil
}

// Save upserts the position for name.
func (s *PostgresStore) Save(ctx context.Context, name string, since int64) error {
	query := `
        INSERT INTO changefeed_cursor (name, last_seq, last_updated)
        VALUES ($1, $2, CURRENT_TIMESTAMP)
        ON CONFLICT (name) DO UPDATE SET
            last_seq = EXCLUDED.last_seq,
            last_updated = CURRENT_TIMESTAMP
    `
	commandTag, err := s.db.Exec(ctx, query, name, since)
	if err != nil {
		slog.ErrorContext(ctx, "Error saving changefeed cursor", "name", name, "error", err)
		return fmt.Errorf("failed to save changefeed cursor: %w", err)
	}
	slog.DebugContext(ctx, "Saved changefeed cursor", "name", name, "since", since, "rowsAffected", commandTag.RowsAffected())
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
