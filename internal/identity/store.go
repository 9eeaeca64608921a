// Package identity holds user accounts and credential checks.
//
// Store is not safe for concurrent use on its own; the engine serializes access.
package identity

import (
	"keyline/internal/domain"
	"keyline/internal/ids"
)

type Store struct {
	accounts    []domain.UserAccount
	protectedID string
}

func New(protectedID string) *Store {
	return &Store{protectedID: protectedID}
}

func (s *Store) ProtectedID() string { return s.protectedID }

func (s *Store) indexOf(id string) int {
	for i, a := range s.accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) usernameTaken(username, exceptID string) bool {
	for _, a := range s.accounts {
		if a.Username == username && a.ID != exceptID {
			return true
		}
	}
	return false
}

// Create stores a new account under a fresh id. A caller-supplied id is kept
// only when it is not already in use.
func (s *Store) Create(a domain.UserAccount) (domain.UserAccount, error) {
	if s.usernameTaken(a.Username, "") {
		return domain.UserAccount{}, &domain.DuplicateUsernameError{Username: a.Username}
	}
	if a.ID == "" || s.indexOf(a.ID) >= 0 {
		a.ID = ids.New()
	}
	s.accounts = append(s.accounts, a)
	return a, nil
}

// Update replaces every field except the id.
func (s *Store) Update(id string, a domain.UserAccount) (domain.UserAccount, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.UserAccount{}, domain.NotFound("account", id)
	}
	if s.usernameTaken(a.Username, id) {
		return domain.UserAccount{}, &domain.DuplicateUsernameError{Username: a.Username}
	}
	a.ID = id
	s.accounts[idx] = a
	return a, nil
}

// Delete removes the account. Releasing keys held by it is the caller's job.
func (s *Store) Delete(id string) (domain.UserAccount, error) {
	if id == s.protectedID {
		return domain.UserAccount{}, &domain.ProtectedAccountError{ID: id}
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.UserAccount{}, domain.NotFound("account", id)
	}
	removed := s.accounts[idx]
	s.accounts = append(s.accounts[:idx], s.accounts[idx+1:]...)
	return removed, nil
}

// ValidateLogin matches username, password and role exactly.
func (s *Store) ValidateLogin(username, password string, role domain.Role) (domain.UserAccount, bool) {
	for _, a := range s.accounts {
		if a.Username == username && a.Password == password && a.Role == role {
			return a, true
		}
	}
	return domain.UserAccount{}, false
}

func (s *Store) Get(id string) (domain.UserAccount, bool) {
	if idx := s.indexOf(id); idx >= 0 {
		return s.accounts[idx], true
	}
	return domain.UserAccount{}, false
}

// Name resolves a display name. Satisfies inventory.Directory.
func (s *Store) Name(id string) (string, bool) {
	a, ok := s.Get(id)
	return a.Name, ok
}

func (s *Store) List() []domain.UserAccount {
	out := make([]domain.UserAccount, len(s.accounts))
	copy(out, s.accounts)
	return out
}

func (s *Store) ListByRole(role domain.Role) []domain.UserAccount {
	var out []domain.UserAccount
	for _, a := range s.accounts {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// Restore loads accounts verbatim, ids included. Used for seeding.
func (s *Store) Restore(accounts []domain.UserAccount) {
	s.accounts = append(s.accounts, accounts...)
}
