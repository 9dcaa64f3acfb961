package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store for dev and tests. A single mutex funnels all
// writes, which is the single-writer alternative to the database uniqueness
// constraint.
type Memory struct {
	mu      sync.Mutex
	records map[string]map[string]*Record // identity -> day -> record
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]map[string]*Record)}
}

func (m *Memory) get(identityID, day string) *Record {
	days, ok := m.records[identityID]
	if !ok {
		days = make(map[string]*Record)
		m.records[identityID] = days
	}
	return days[day]
}

func (m *Memory) put(rec *Record) {
	m.records[rec.IdentityID][rec.Date] = rec
}

// CheckIn claims the day's record or reports ErrAlreadyCheckedIn.
func (m *Memory) CheckIn(_ context.Context, identityID, day string, at time.Time, status Status) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.get(identityID, day)
	if rec == nil {
		rec = &Record{IdentityID: identityID, Date: day, Status: StatusAbsent}
		m.put(rec)
	}
	if rec.CheckInTime != nil {
		return Record{}, ErrAlreadyCheckedIn
	}
	t := at
	rec.CheckInTime = &t
	rec.Status = status
	return *rec, nil
}

// CheckOut sets the check-out instant or reports the ordering error.
func (m *Memory) CheckOut(_ context.Context, identityID, day string, at time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.get(identityID, day)
	if rec == nil || rec.CheckInTime == nil {
		return Record{}, ErrNotCheckedInYet
	}
	if rec.CheckOutTime != nil {
		return Record{}, ErrAlreadyCheckedOut
	}
	t := at
	rec.CheckOutTime = &t
	return *rec, nil
}

// Today returns the day's record, creating the absent placeholder if missing.
func (m *Memory) Today(_ context.Context, identityID, day string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.get(identityID, day)
	if rec == nil {
		rec = &Record{IdentityID: identityID, Date: day, Status: StatusAbsent}
		m.put(rec)
	}
	return *rec, nil
}

// Range lists records in [from, to], oldest first.
func (m *Memory) Range(_ context.Context, identityID, from, to string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for day, rec := range m.records[identityID] {
		if day >= from && day <= to {
			res = append(res, *rec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res, nil
}
