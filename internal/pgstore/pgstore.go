// Package pgstore implements the cold relational tier on PostgreSQL:
// the user repository, durable group ids, archived message history,
// and friendship rows.
package pgstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open creates a connection pool, verifies connectivity, and returns
// the store.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	logger.Info("postgres connection pool created",
		"max_conns", cfg.MaxConns,
		"min_conns", cfg.MinConns,
	)

	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			last_login_time TIMESTAMPTZ,
			online BOOLEAN NOT NULL DEFAULT FALSE,
			create_time TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS user_friends (
			user_id1 BIGINT NOT NULL,
			user_id2 BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'accepted',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id1, user_id2),
			CHECK (user_id1 < user_id2)
		)`,
		`CREATE TABLE IF NOT EXISTS private_messages (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			message_id TEXT NOT NULL DEFAULT '',
			from_user_id BIGINT NOT NULL,
			to_user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			message_type TEXT NOT NULL DEFAULT 'private'
		)`,
		`ALTER TABLE private_messages
			ADD COLUMN IF NOT EXISTS message_id TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_private_messages_pair
			ON private_messages (from_user_id, to_user_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS group_messages (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			message_id TEXT NOT NULL DEFAULT '',
			group_id BIGINT NOT NULL,
			from_user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			message_type TEXT NOT NULL DEFAULT 'group'
		)`,
		`ALTER TABLE group_messages
			ADD COLUMN IF NOT EXISTS message_id TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_group_messages_group
			ON group_messages (group_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS "groups" (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL,
			creator_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
