package inventory_test

import (
	"errors"
	"testing"
	"time"

	"keyline/internal/domain"
	"keyline/internal/inventory"
	"keyline/internal/ledger"
)

type directory map[string]string

func (d directory) Name(id string) (string, bool) {
	n, ok := d[id]
	return n, ok
}

func newInventory(t *testing.T) (*inventory.Inventory, *ledger.Ledger) {
	t.Helper()
	clock := func() time.Time { return time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC) }
	l := ledger.New(clock)
	inv := inventory.New(directory{"s1": "Sam One", "s2": "Sue Two"}, l, clock)
	return inv, l
}

func assertInvariant(t *testing.T, inv *inventory.Inventory) {
	t.Helper()
	for _, k := range inv.List() {
		assigned := k.Status == domain.KeyAssigned
		if assigned != (k.AssignedTo != "") || assigned != (k.AssignedToName != "") {
			t.Fatalf("assignment invariant broken for %+v", k)
		}
	}
}

func TestCreateDefaults(t *testing.T) {
	inv, _ := newInventory(t)
	k := inv.Create(domain.Key{KeyNumber: "K-1", Description: "Front"})
	if k.ID == "" || k.Status != domain.KeyAvailable || k.CreatedDate != "2025-03-04" {
		t.Fatalf("unexpected key %+v", k)
	}
	if got := inv.Available(); len(got) != 1 || got[0].ID != k.ID {
		t.Fatalf("expected key in available pool")
	}
}

func TestAssignUnassignWritesLedger(t *testing.T) {
	inv, l := newInventory(t)
	k := inv.Create(domain.Key{KeyNumber: "K-1"})

	if !inv.Assign(k.ID, "s1") {
		t.Fatalf("assign should apply")
	}
	got, _ := inv.Get(k.ID)
	if got.Status != domain.KeyAssigned || got.AssignedTo != "s1" || got.AssignedToName != "Sam One" {
		t.Fatalf("unexpected key after assign %+v", got)
	}
	assertInvariant(t, inv)

	if !inv.Unassign(k.ID) {
		t.Fatalf("unassign should apply")
	}
	assertInvariant(t, inv)
	entries := l.List(ledger.Filter{KeyID: k.ID})
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	ret := entries[1]
	if ret.Action != domain.ActionReturn || ret.StaffID != "s1" || ret.StaffName != "Sam One" || ret.KeyNumber != "K-1" {
		t.Fatalf("return entry must carry pre-unassign snapshot, got %+v", ret)
	}
}

func TestNoOps(t *testing.T) {
	inv, l := newInventory(t)
	k := inv.Create(domain.Key{KeyNumber: "K-1"})

	if inv.Assign("missing", "s1") || inv.Assign(k.ID, "missing") {
		t.Fatalf("unresolved ids must be ignored")
	}
	if inv.Unassign(k.ID) || inv.Unassign("missing") {
		t.Fatalf("unassign of available/unknown key must be ignored")
	}
	inv.Assign(k.ID, "s1")
	if inv.Assign(k.ID, "s2") {
		t.Fatalf("assigning an assigned key must be ignored")
	}
	if got, _ := inv.Get(k.ID); got.AssignedTo != "s1" {
		t.Fatalf("key stolen by second assign")
	}
	if l.Len() != 1 {
		t.Fatalf("ledger length must equal effective transitions, got %d", l.Len())
	}
}

func TestReleaseHeldBy(t *testing.T) {
	inv, l := newInventory(t)
	a := inv.Create(domain.Key{KeyNumber: "A"})
	b := inv.Create(domain.Key{KeyNumber: "B"})
	c := inv.Create(domain.Key{KeyNumber: "C"})
	inv.Assign(a.ID, "s1")
	inv.Assign(b.ID, "s1")
	inv.Assign(c.ID, "s2")

	released := inv.ReleaseHeldBy("s1", false)
	if len(released) != 2 {
		t.Fatalf("expected 2 released keys, got %v", released)
	}
	assertInvariant(t, inv)
	if l.Len() != 3 {
		t.Fatalf("silent release must not write history, ledger has %d", l.Len())
	}
	if got, _ := inv.Get(c.ID); got.Status != domain.KeyAssigned {
		t.Fatalf("other holder's key released")
	}

	inv.ReleaseHeldBy("s2", true)
	if l.Len() != 4 {
		t.Fatalf("recorded release must write a return, ledger has %d", l.Len())
	}
}

func TestUpdateAndDelete(t *testing.T) {
	inv, _ := newInventory(t)
	k := inv.Create(domain.Key{KeyNumber: "K-1", Description: "old"})
	upd, err := inv.Update(k.ID, domain.Key{KeyNumber: "K-9", Description: "new", Status: domain.KeyAvailable})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.ID != k.ID || upd.CreatedDate != k.CreatedDate || upd.KeyNumber != "K-9" {
		t.Fatalf("unexpected update %+v", upd)
	}
	if _, err := inv.Delete(k.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := inv.Delete(k.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
