package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status of a day's record, derived solely from CheckInTime relative to the
// late threshold. Absent means no check-in has happened yet.
type Status string

const (
	StatusAbsent  Status = "absent"
	StatusPresent Status = "present"
	StatusLate    Status = "late"
)

// DayFormat is the canonical calendar-day key.
const DayFormat = "2006-01-02"

// Record is the per-identity, per-day attendance entity. At most one exists
// per (identity, day).
type Record struct {
	IdentityID   string     `json:"identity_id"`
	Date         string     `json:"date"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
	Status       Status     `json:"status"`
}

// Transition errors. All are idempotent no-ops: the record is never partially
// mutated when one of these is returned.
var (
	ErrAlreadyCheckedIn  = errors.New("already checked in today")
	ErrNotCheckedInYet   = errors.New("not checked in yet")
	ErrAlreadyCheckedOut = errors.New("already checked out today")
)

// Store persists records. Implementations must make each transition atomic
// with respect to concurrent requests for the same (identity, day): either
// via a uniqueness constraint with conditional upserts, or a single-writer
// path.
type Store interface {
	// CheckIn creates the day's record if missing and sets check_in_time,
	// or fails with ErrAlreadyCheckedIn when it is already set.
	CheckIn(ctx context.Context, identityID, day string, at time.Time, status Status) (Record, error)
	// CheckOut sets check_out_time on a checked-in record, or fails with
	// ErrNotCheckedInYet / ErrAlreadyCheckedOut.
	CheckOut(ctx context.Context, identityID, day string, at time.Time) (Record, error)
	// Today returns the day's record, creating an absent placeholder when
	// none exists.
	Today(ctx context.Context, identityID, day string) (Record, error)
	// Range returns records for [from, to] inclusive, ordered by day.
	// Read-only; consumers must not mutate records through it.
	Range(ctx context.Context, identityID, from, to string) ([]Record, error)
}

// TimeOfDay is a wall-clock cutoff within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On returns the cutoff instant for the day containing t, in t's location.
func (d TimeOfDay) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, t.Location())
}

// Service applies the attendance state machine. One late threshold governs
// both transitions and reporting; a check-in strictly after the threshold is
// late, one exactly at it is present.
type Service struct {
	store Store
	late  TimeOfDay
	now   func() time.Time
}

// NewService creates a service. The late threshold comes from config and is
// the single canonical cutoff for the whole system.
func NewService(store Store, late TimeOfDay) *Service {
	return NewServiceWithClock(store, late, time.Now)
}

// NewServiceWithClock injects the clock; tests pin transition instants with it.
func NewServiceWithClock(store Store, late TimeOfDay, now func() time.Time) *Service {
	return &Service{store: store, late: late, now: now}
}

// CheckIn records today's check-in for the identity and derives the status.
func (s *Service) CheckIn(ctx context.Context, identityID string) (Record, error) {
	now := s.now()
	status := StatusPresent
	if now.After(s.late.On(now)) {
		status = StatusLate
	}
	return s.store.CheckIn(ctx, identityID, now.Format(DayFormat), now, status)
}

// CheckOut records today's check-out. Status is unchanged by check-out.
func (s *Service) CheckOut(ctx context.Context, identityID string) (Record, error) {
	now := s.now()
	return s.store.CheckOut(ctx, identityID, now.Format(DayFormat), now)
}

// Today returns today's record, creating the absent placeholder if needed, so
// downstream views always have a record to render.
func (s *Service) Today(ctx context.Context, identityID string) (Record, error) {
	return s.store.Today(ctx, identityID, s.now().Format(DayFormat))
}

// Range lists records for a date range (inclusive). Days are DayFormat keys.
func (s *Service) Range(ctx context.Context, identityID, from, to string) ([]Record, error) {
	if _, err := time.Parse(DayFormat, from); err != nil {
		return nil, fmt.Errorf("invalid from date: %w", err)
	}
	if _, err := time.Parse(DayFormat, to); err != nil {
		return nil, fmt.Errorf("invalid to date: %w", err)
	}
	return s.store.Range(ctx, identityID, from, to)
}
