// Package ledger holds the append-only key checkout/return history.
package ledger

import (
	"sort"
	"sync"
	"time"

	"keyline/internal/domain"
	"keyline/internal/ids"
)

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	StaffID string
	KeyID   string
	Action  domain.HistoryAction
}

func (f Filter) match(e domain.KeyHistoryEntry) bool {
	if f.StaffID != "" && e.StaffID != f.StaffID {
		return false
	}
	if f.KeyID != "" && e.KeyID != f.KeyID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

// Ledger is safe for concurrent use. Entries are never updated or removed.
type Ledger struct {
	mu      sync.RWMutex
	entries []domain.KeyHistoryEntry
	seq     int64
	Now     func() time.Time
}

func New(now func() time.Time) *Ledger {
	return &Ledger{Now: now}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Record assigns an id, sequence number and (if unset) a timestamp, then appends.
func (l *Ledger) Record(e domain.KeyHistoryEntry) domain.KeyHistoryEntry {
	at := l.now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e.Seq = l.seq
	e.ID = ids.Sortable(at)
	if e.Timestamp == "" {
		e.Timestamp = at.Format(time.RFC3339)
	}
	l.entries = append(l.entries, e)
	return e
}

// Restore appends pre-existing entries verbatim, keeping their ids. Used for seeding.
func (l *Ledger) Restore(entries []domain.KeyHistoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.seq++
		e.Seq = l.seq
		if e.ID == "" {
			e.ID = ids.Sortable(l.now())
		}
		l.entries = append(l.entries, e)
	}
}

// List returns matching entries in insertion order.
func (l *Ledger) List(f Filter) []domain.KeyHistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.KeyHistoryEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// SortDesc orders entries newest first; equal timestamps put the later insertion first.
func SortDesc(entries []domain.KeyHistoryEntry) []domain.KeyHistoryEntry {
	out := make([]domain.KeyHistoryEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := parseTS(out[i].Timestamp), parseTS(out[j].Timestamp)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

func parseTS(ts string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}
