package engine

import (
	"context"
	"strings"

	"keyline/internal/config"
	"keyline/internal/domain"
	"keyline/internal/events"
)

func validateAccount(a *domain.UserAccount, requirePassword bool) error {
	a.Username = strings.TrimSpace(a.Username)
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.TrimSpace(a.Email)
	a.Phone = strings.TrimSpace(a.Phone)
	if !a.Role.Valid() {
		return &domain.ValidationError{Field: "role", Reason: "must be supervisor or staff"}
	}
	required := []struct {
		field, value string
	}{
		{"username", a.Username},
		{"name", a.Name},
		{"email", a.Email},
		{"phone", a.Phone},
	}
	if requirePassword {
		required = append(required, struct{ field, value string }{"password", a.Password})
	}
	for _, r := range required {
		if r.value == "" {
			return &domain.ValidationError{Field: r.field}
		}
	}
	return nil
}

func (e *Engine) CreateAccount(ctx context.Context, a domain.UserAccount) (domain.UserAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	if err := validateAccount(&a, true); err != nil {
		return domain.UserAccount{}, err
	}
	a.ID = ""
	created, err := e.Identity.Create(a)
	if err != nil {
		return domain.UserAccount{}, err
	}
	e.emit(ctx, "account.created", "account", created.ID, events.EventPayload{
		"username": created.Username,
		"role":     string(created.Role),
	})
	return created.Public(), nil
}

// UpdateAccount replaces the account. An empty password keeps the current
// one. Cached names on keys and pending tasks follow the new name, and the
// active session is refreshed when it belongs to this account.
func (e *Engine) UpdateAccount(ctx context.Context, id string, a domain.UserAccount) (domain.UserAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	current, ok := e.Identity.Get(id)
	if !ok {
		return domain.UserAccount{}, domain.NotFound("account", id)
	}
	if a.Password == "" {
		a.Password = current.Password
	}
	if err := validateAccount(&a, true); err != nil {
		return domain.UserAccount{}, err
	}
	updated, err := e.Identity.Update(id, a)
	if err != nil {
		return domain.UserAccount{}, err
	}
	e.Inventory.RenameHolder(id, updated.Name)
	for i := range e.tasks {
		if e.tasks[i].AssignedToID == id && e.tasks[i].Status == domain.TaskPending {
			e.tasks[i].AssignedTo = updated.Name
		}
	}
	if e.session != nil && e.session.ID == id {
		s := updated
		e.session = &s
	}
	e.emit(ctx, "account.updated", "account", id, events.EventPayload{
		"username": updated.Username,
		"role":     string(updated.Role),
	})
	return updated.Public(), nil
}

// DeleteAccount removes the account and releases every key it holds. Pending
// tasks assigned to it follow the orphan policy.
func (e *Engine) DeleteAccount(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	if id == e.Identity.ProtectedID() {
		return &domain.ProtectedAccountError{ID: id}
	}
	if _, ok := e.Identity.Get(id); !ok {
		return domain.NotFound("account", id)
	}
	orphans := e.pendingTaskIDs(func(t domain.Task) bool { return t.AssignedToID == id })
	if len(orphans) > 0 && e.Policy.OrphanTasks == config.OrphanForbid {
		return &domain.ReferencedError{Kind: "account", ID: id, TaskIDs: orphans}
	}
	if _, err := e.Identity.Delete(id); err != nil {
		return err
	}
	record := e.Policy.RecordImplicitReturns
	released := e.Inventory.ReleaseHeldBy(id, record)
	if !record {
		e.Metrics.SilentRelease(len(released))
	}
	e.removeTasks(orphans)
	e.Metrics.TasksCascaded("account_deleted", len(orphans))
	if e.session != nil && e.session.ID == id {
		e.session = nil
	}
	e.emit(ctx, "account.deleted", "account", id, events.EventPayload{
		"released_keys":   released,
		"cancelled_tasks": orphans,
	})
	return nil
}

func (e *Engine) GetAccount(ctx context.Context, id string) (domain.UserAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.Identity.Get(id)
	if !ok {
		return domain.UserAccount{}, domain.NotFound("account", id)
	}
	return a.Public(), nil
}

// ListAccounts returns accounts in insertion order, all of them when role is empty.
func (e *Engine) ListAccounts(ctx context.Context, role domain.Role) []domain.UserAccount {
	e.mu.Lock()
	defer e.mu.Unlock()
	var src []domain.UserAccount
	if role == "" {
		src = e.Identity.List()
	} else {
		src = e.Identity.ListByRole(role)
	}
	out := make([]domain.UserAccount, 0, len(src))
	for _, a := range src {
		out = append(out, a.Public())
	}
	return out
}

// ValidateLogin checks credentials without touching the session.
func (e *Engine) ValidateLogin(ctx context.Context, username, password string, role domain.Role) (domain.UserAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.Identity.ValidateLogin(username, password, role)
	if !ok {
		return domain.UserAccount{}, domain.ErrInvalidCredentials
	}
	return a.Public(), nil
}
