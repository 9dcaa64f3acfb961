package enroll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"faceattend/internal/vision"
)

// Repository persists enrollments in Postgres with a pgvector column.
type Repository struct {
	db  *sql.DB
	dim int
}

// NewRepository creates a repo. dim is the embedding dimension enforced on
// writes; 0 disables the check.
func NewRepository(db *sql.DB, dim int) *Repository {
	return &Repository{db: db, dim: dim}
}

// Get returns the enrolled embedding for an identity.
func (r *Repository) Get(ctx context.Context, identityID string) (vision.Embedding, bool, error) {
	var vec pgvector.Vector
	err := r.db.QueryRowContext(ctx, `
		SELECT embedding FROM enrollments WHERE identity_id = $1
	`, identityID).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query enrollment: %w", err)
	}
	return vision.Embedding(vec.Slice()), true, nil
}

// Put stores the embedding, replacing any prior enrollment for the identity.
func (r *Repository) Put(ctx context.Context, identityID string, emb vision.Embedding) error {
	if err := checkDim(emb, r.dim); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (identity_id, embedding, dim, enrolled_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (identity_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			enrolled_at = NOW()
	`, identityID, pgvector.NewVector([]float32(emb)), len(emb))
	if err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}
