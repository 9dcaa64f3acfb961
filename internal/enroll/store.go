package enroll

import (
	"context"
	"errors"
	"fmt"

	"faceattend/internal/vision"
)

// ErrDimensionMismatch is returned when an embedding does not match the
// dimension of the configured model version.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store holds at most one reference embedding per identity. Put replaces any
// prior enrollment wholesale; embeddings are never mutated in place.
type Store interface {
	// Get returns the enrolled embedding, or ok=false when the identity has
	// no enrollment.
	Get(ctx context.Context, identityID string) (vision.Embedding, bool, error)
	Put(ctx context.Context, identityID string, emb vision.Embedding) error
}

func checkDim(emb vision.Embedding, dim int) error {
	if len(emb) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}
	if dim > 0 && len(emb) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), dim)
	}
	return nil
}
