package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// migrations run in order at startup. Statements must be idempotent.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS identities (
		id         UUID PRIMARY KEY,
		name       TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		identity_id UUID PRIMARY KEY REFERENCES identities(id),
		embedding   VECTOR NOT NULL,
		dim         INT NOT NULL,
		enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		identity_id    UUID NOT NULL REFERENCES identities(id),
		day            DATE NOT NULL,
		check_in_time  TIMESTAMPTZ,
		check_out_time TIMESTAMPTZ,
		status         TEXT NOT NULL DEFAULT 'absent',
		PRIMARY KEY (identity_id, day)
	)`,
	`CREATE TABLE IF NOT EXISTS verification_attempts (
		id          UUID PRIMARY KEY,
		identity_id UUID NOT NULL,
		mode        TEXT NOT NULL,
		purpose     TEXT,
		outcome     TEXT NOT NULL,
		distance    DOUBLE PRECISION,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS verification_attempts_identity_idx
		ON verification_attempts (identity_id, occurred_at DESC)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token       TEXT PRIMARY KEY,
		identity_id UUID NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		revoked     BOOLEAN NOT NULL DEFAULT FALSE
	)`,
}

// Migrate applies the schema. The (identity_id, day) primary key on
// attendance is what makes concurrent check-in upserts safe.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
