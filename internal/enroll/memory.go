package enroll

import (
	"context"
	"sync"

	"faceattend/internal/vision"
)

// Memory is an in-process store for dev and tests.
type Memory struct {
	dim int

	mu   sync.RWMutex
	refs map[string]vision.Embedding
}

// NewMemory creates an empty in-memory store.
func NewMemory(dim int) *Memory {
	return &Memory{dim: dim, refs: make(map[string]vision.Embedding)}
}

// Get returns the enrolled embedding for an identity.
func (m *Memory) Get(_ context.Context, identityID string) (vision.Embedding, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emb, ok := m.refs[identityID]
	return emb, ok, nil
}

// Put stores the embedding, replacing any prior enrollment.
func (m *Memory) Put(_ context.Context, identityID string, emb vision.Embedding) error {
	if err := checkDim(emb, m.dim); err != nil {
		return err
	}
	cp := make(vision.Embedding, len(emb))
	copy(cp, emb)
	m.mu.Lock()
	m.refs[identityID] = cp
	m.mu.Unlock()
	return nil
}
