package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"faceattend/internal/queue"
	"faceattend/internal/verify"
)

// MessageType tags verification attempts on the queue.
const MessageType = "attempt"

// Publisher forwards session attempts onto a queue for the audit worker.
type Publisher struct {
	q queue.Queue
}

// NewPublisher wraps a queue.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Report publishes the attempt. Publish failures are logged, not surfaced;
// the audit trail must never block or fail a verification session.
func (p *Publisher) Report(ctx context.Context, a verify.Attempt) {
	body, err := json.Marshal(a)
	if err != nil {
		log.Printf("audit marshal failed: %v", err)
		return
	}
	if err := p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}

// Repository persists verification attempts for offline review.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert records one attempt.
func (r *Repository) Insert(ctx context.Context, a verify.Attempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_attempts (id, identity_id, mode, purpose, outcome, distance, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.IdentityID, string(a.Mode), string(a.Purpose), a.Outcome, a.Distance, a.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ListRecent returns the latest attempts for an identity, newest first.
func (r *Repository) ListRecent(ctx context.Context, identityID string, limit int) ([]verify.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, identity_id, mode, purpose, outcome, distance, occurred_at
		FROM verification_attempts
		WHERE identity_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, identityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []verify.Attempt
	for rows.Next() {
		var a verify.Attempt
		var mode, purpose string
		if err := rows.Scan(&a.ID, &a.IdentityID, &mode, &purpose, &a.Outcome, &a.Distance, &a.OccurredAt); err != nil {
			return nil, err
		}
		a.Mode = verify.Mode(mode)
		a.Purpose = verify.Purpose(purpose)
		res = append(res, a)
	}
	return res, rows.Err()
}
