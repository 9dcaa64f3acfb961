package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists attendance records in Postgres. The (identity_id, day)
// primary key plus conditional upserts make every transition a single atomic
// statement, so concurrent requests for the same identity and day cannot race
// into duplicate records or lost updates.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CheckIn inserts or claims the day's record in one statement. The WHERE on
// the conflict update means an already-set check_in_time is never overwritten;
// in that case no row returns and the call maps to ErrAlreadyCheckedIn.
func (r *Repository) CheckIn(ctx context.Context, identityID, day string, at time.Time, status Status) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (identity_id, day, check_in_time, status)
		VALUES ($1, $2::date, $3, $4)
		ON CONFLICT (identity_id, day) DO UPDATE SET
			check_in_time = EXCLUDED.check_in_time,
			status = EXCLUDED.status
		WHERE attendance.check_in_time IS NULL
		RETURNING identity_id, day, check_in_time, check_out_time, status
	`, identityID, day, at, status)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrAlreadyCheckedIn
	}
	if err != nil {
		return Record{}, fmt.Errorf("check-in upsert: %w", err)
	}
	return rec, nil
}

// CheckOut sets check_out_time only when the record is checked in and not yet
// checked out. When no row matches, a follow-up read disambiguates the error.
func (r *Repository) CheckOut(ctx context.Context, identityID, day string, at time.Time) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance SET check_out_time = $3
		WHERE identity_id = $1 AND day = $2::date
			AND check_in_time IS NOT NULL AND check_out_time IS NULL
		RETURNING identity_id, day, check_in_time, check_out_time, status
	`, identityID, day, at)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, r.checkOutFailure(ctx, identityID, day)
	}
	if err != nil {
		return Record{}, fmt.Errorf("check-out update: %w", err)
	}
	return rec, nil
}

func (r *Repository) checkOutFailure(ctx context.Context, identityID, day string) error {
	var checkedIn, checkedOut bool
	err := r.db.QueryRowContext(ctx, `
		SELECT check_in_time IS NOT NULL, check_out_time IS NOT NULL
		FROM attendance WHERE identity_id = $1 AND day = $2::date
	`, identityID, day).Scan(&checkedIn, &checkedOut)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotCheckedInYet
	}
	if err != nil {
		return fmt.Errorf("check-out lookup: %w", err)
	}
	if checkedOut {
		return ErrAlreadyCheckedOut
	}
	return ErrNotCheckedInYet
}

// Today returns the day's record, creating the absent placeholder first. The
// DO NOTHING insert makes concurrent probes converge on a single row.
func (r *Repository) Today(ctx context.Context, identityID, day string) (Record, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (identity_id, day, status)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (identity_id, day) DO NOTHING
	`, identityID, day, StatusAbsent)
	if err != nil {
		return Record{}, fmt.Errorf("placeholder insert: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT identity_id, day, check_in_time, check_out_time, status
		FROM attendance WHERE identity_id = $1 AND day = $2::date
	`, identityID, day)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("today lookup: %w", err)
	}
	return rec, nil
}

// Range lists records for the inclusive date range, oldest first.
func (r *Repository) Range(ctx context.Context, identityID, from, to string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT identity_id, day, check_in_time, check_out_time, status
		FROM attendance
		WHERE identity_id = $1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day
	`, identityID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		var d time.Time
		if err := rows.Scan(&rec.IdentityID, &d, &rec.CheckInTime, &rec.CheckOutTime, &rec.Status); err != nil {
			return nil, err
		}
		rec.Date = d.Format(DayFormat)
		res = append(res, rec)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var d time.Time
	if err := row.Scan(&rec.IdentityID, &d, &rec.CheckInTime, &rec.CheckOutTime, &rec.Status); err != nil {
		return Record{}, err
	}
	rec.Date = d.Format(DayFormat)
	return rec, nil
}
