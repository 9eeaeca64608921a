// Package inventory holds keys and moves them between Available and Assigned.
//
// Inventory is not safe for concurrent use on its own; the engine serializes access.
package inventory

import (
	"time"

	"keyline/internal/domain"
	"keyline/internal/ids"
)

// Directory resolves account display names.
type Directory interface {
	Name(id string) (string, bool)
}

// Recorder appends checkout and return entries.
type Recorder interface {
	Record(domain.KeyHistoryEntry) domain.KeyHistoryEntry
}

type Inventory struct {
	keys []domain.Key
	dir  Directory
	rec  Recorder
	Now  func() time.Time
}

func New(dir Directory, rec Recorder, now func() time.Time) *Inventory {
	return &Inventory{dir: dir, rec: rec, Now: now}
}

func (inv *Inventory) now() time.Time {
	if inv.Now != nil {
		return inv.Now()
	}
	return time.Now()
}

func (inv *Inventory) indexOf(id string) int {
	for i, k := range inv.keys {
		if k.ID == id {
			return i
		}
	}
	return -1
}

// Create assigns an id and creation date. Status defaults to Available.
func (inv *Inventory) Create(k domain.Key) domain.Key {
	k.ID = ids.New()
	k.CreatedDate = inv.now().UTC().Format(time.DateOnly)
	if k.Status == "" {
		k.Status = domain.KeyAvailable
	}
	inv.keys = append(inv.keys, k)
	return k
}

// Update replaces every field except the id. The assignment invariant is not
// checked here.
func (inv *Inventory) Update(id string, k domain.Key) (domain.Key, error) {
	idx := inv.indexOf(id)
	if idx < 0 {
		return domain.Key{}, domain.NotFound("key", id)
	}
	k.ID = id
	if k.CreatedDate == "" {
		k.CreatedDate = inv.keys[idx].CreatedDate
	}
	inv.keys[idx] = k
	return k, nil
}

func (inv *Inventory) Delete(id string) (domain.Key, error) {
	idx := inv.indexOf(id)
	if idx < 0 {
		return domain.Key{}, domain.NotFound("key", id)
	}
	removed := inv.keys[idx]
	inv.keys = append(inv.keys[:idx], inv.keys[idx+1:]...)
	return removed, nil
}

// Assign binds an Available key to a user and records a checkout. It reports
// false without error when either id does not resolve or the key is already
// Assigned.
func (inv *Inventory) Assign(keyID, userID string) bool {
	idx := inv.indexOf(keyID)
	if idx < 0 {
		return false
	}
	name, ok := inv.dir.Name(userID)
	if !ok {
		return false
	}
	k := &inv.keys[idx]
	if k.Status == domain.KeyAssigned {
		return false
	}
	k.Status = domain.KeyAssigned
	k.AssignedTo = userID
	k.AssignedToName = name
	inv.rec.Record(domain.KeyHistoryEntry{
		KeyID:     k.ID,
		KeyNumber: k.KeyNumber,
		Action:    domain.ActionCheckout,
		StaffID:   userID,
		StaffName: name,
	})
	return true
}

// Unassign records a return against the current assignee and makes the key
// Available. No-op for Available or unknown keys.
func (inv *Inventory) Unassign(keyID string) bool {
	idx := inv.indexOf(keyID)
	if idx < 0 || inv.keys[idx].Status != domain.KeyAssigned {
		return false
	}
	inv.release(idx, true)
	return true
}

// ReleaseHeldBy makes every key assigned to userID Available. Return entries
// are written only when record is set.
func (inv *Inventory) ReleaseHeldBy(userID string, record bool) []string {
	var released []string
	for i := range inv.keys {
		if inv.keys[i].Status == domain.KeyAssigned && inv.keys[i].AssignedTo == userID {
			released = append(released, inv.keys[i].ID)
			inv.release(i, record)
		}
	}
	return released
}

func (inv *Inventory) release(idx int, record bool) {
	k := &inv.keys[idx]
	if record {
		inv.rec.Record(domain.KeyHistoryEntry{
			KeyID:     k.ID,
			KeyNumber: k.KeyNumber,
			Action:    domain.ActionReturn,
			StaffID:   k.AssignedTo,
			StaffName: k.AssignedToName,
		})
	}
	k.Status = domain.KeyAvailable
	k.AssignedTo = ""
	k.AssignedToName = ""
}

// RenameHolder refreshes the cached assignee name on keys held by userID.
func (inv *Inventory) RenameHolder(userID, name string) {
	for i := range inv.keys {
		if inv.keys[i].AssignedTo == userID {
			inv.keys[i].AssignedToName = name
		}
	}
}

func (inv *Inventory) Available() []domain.Key {
	var out []domain.Key
	for _, k := range inv.keys {
		if k.Status == domain.KeyAvailable {
			out = append(out, k)
		}
	}
	return out
}

func (inv *Inventory) Get(id string) (domain.Key, bool) {
	if idx := inv.indexOf(id); idx >= 0 {
		return inv.keys[idx], true
	}
	return domain.Key{}, false
}

func (inv *Inventory) List() []domain.Key {
	out := make([]domain.Key, len(inv.keys))
	copy(out, inv.keys)
	return out
}

// Restore loads keys verbatim. Used for seeding.
func (inv *Inventory) Restore(keys []domain.Key) {
	inv.keys = append(inv.keys, keys...)
}
