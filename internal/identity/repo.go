package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Identity is an enrolled person reference.
type Identity struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists identities and refresh tokens in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert ensures an identity row exists; a later registration with a name
// fills in a missing one.
func (r *Repository) Upsert(ctx context.Context, id string, name *string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, identities.name)
	`, id, name)
	return err
}

// Get returns an identity, or nil when unknown.
func (r *Repository) Get(ctx context.Context, id string) (*Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM identities WHERE id = $1
	`, id)
	var ident Identity
	if err := row.Scan(&ident.ID, &ident.Name, &ident.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ident, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, identity_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, id, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}
