package identity_test

import (
	"errors"
	"testing"

	"keyline/internal/domain"
	"keyline/internal/identity"
)

func seeded(t *testing.T) *identity.Store {
	t.Helper()
	s := identity.New("sv-default")
	s.Restore([]domain.UserAccount{
		{ID: "sv-default", Username: "supervisor", Password: "123456", Name: "Default Supervisor", Role: domain.RoleSupervisor},
		{ID: "staff-1", Username: "john", Password: "123456", Name: "John Smith", Role: domain.RoleStaff},
		{ID: "staff-2", Username: "jane", Password: "123456", Name: "Jane Doe", Role: domain.RoleStaff},
	})
	return s
}

func TestCreateAssignsFreshID(t *testing.T) {
	s := seeded(t)
	a, err := s.Create(domain.UserAccount{Username: "bob", Password: "pw", Name: "Bob", Role: domain.RoleStaff})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == "" {
		t.Fatalf("expected id")
	}
	b, err := s.Create(domain.UserAccount{ID: a.ID, Username: "carol", Role: domain.RoleStaff})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == a.ID {
		t.Fatalf("expected collision to be replaced with a fresh id")
	}
}

func TestCreateRejectsDuplicateUsername(t *testing.T) {
	s := seeded(t)
	_, err := s.Create(domain.UserAccount{Username: "john", Role: domain.RoleStaff})
	var dup *domain.DuplicateUsernameError
	if !errors.As(err, &dup) || dup.Username != "john" {
		t.Fatalf("expected duplicate username error, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	s := seeded(t)
	upd, err := s.Update("staff-1", domain.UserAccount{ID: "ignored", Username: "johnny", Name: "Johnny Smith", Role: domain.RoleStaff})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.ID != "staff-1" || upd.Name != "Johnny Smith" {
		t.Fatalf("unexpected account %+v", upd)
	}
	if _, err := s.Update("staff-1", domain.UserAccount{Username: "johnny", Role: domain.RoleStaff}); err != nil {
		t.Fatalf("keeping own username must be allowed: %v", err)
	}
	var dup *domain.DuplicateUsernameError
	if _, err := s.Update("staff-1", domain.UserAccount{Username: "jane"}); !errors.As(err, &dup) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := s.Update("missing", domain.UserAccount{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteProtectedAccount(t *testing.T) {
	s := seeded(t)
	var pe *domain.ProtectedAccountError
	if _, err := s.Delete("sv-default"); !errors.As(err, &pe) {
		t.Fatalf("expected protected account error, got %v", err)
	}
	if _, ok := s.Get("sv-default"); !ok {
		t.Fatalf("protected account removed")
	}
	if _, err := s.Delete("staff-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(s.List()) != 2 {
		t.Fatalf("expected 2 accounts left")
	}
}

func TestValidateLogin(t *testing.T) {
	s := seeded(t)
	cases := []struct {
		user, pass string
		role       domain.Role
		ok         bool
	}{
		{"john", "123456", domain.RoleStaff, true},
		{"john", "123456", domain.RoleSupervisor, false},
		{"john", "wrong", domain.RoleStaff, false},
		{"supervisor", "123456", domain.RoleSupervisor, true},
		{"ghost", "123456", domain.RoleStaff, false},
	}
	for _, tc := range cases {
		if _, ok := s.ValidateLogin(tc.user, tc.pass, tc.role); ok != tc.ok {
			t.Fatalf("ValidateLogin(%s,%s,%s)=%v want %v", tc.user, tc.pass, tc.role, ok, tc.ok)
		}
	}
}

func TestListByRolePreservesOrder(t *testing.T) {
	s := seeded(t)
	staff := s.ListByRole(domain.RoleStaff)
	if len(staff) != 2 || staff[0].ID != "staff-1" || staff[1].ID != "staff-2" {
		t.Fatalf("unexpected staff list %+v", staff)
	}
	if name, ok := s.Name("staff-2"); !ok || name != "Jane Doe" {
		t.Fatalf("unexpected name %q", name)
	}
}
