package engine

import (
	"context"

	"keyline/internal/domain"
	"keyline/internal/events"
	"keyline/internal/ledger"
)

// Login validates credentials and makes the account the active session user.
func (e *Engine) Login(ctx context.Context, username, password string, role domain.Role) (domain.UserAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.Identity.ValidateLogin(username, password, role)
	if !ok {
		e.emit(ctx, "session.login_failed", "account", "", events.EventPayload{"username": username, "role": string(role)})
		return domain.UserAccount{}, domain.ErrInvalidCredentials
	}
	e.session = &a
	e.emit(ctx, "session.login", "account", a.ID, events.EventPayload{"role": string(a.Role)})
	return a.Public(), nil
}

func (e *Engine) Logout(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return
	}
	id := e.session.ID
	e.session = nil
	e.emit(ctx, "session.logout", "account", id, nil)
}

// CurrentUser returns the active session user, if any.
func (e *Engine) CurrentUser(ctx context.Context) (domain.UserAccount, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.UserAccount{}, false
	}
	return e.session.Public(), true
}

// HistoryFilter narrows the checkout ledger view.
type HistoryFilter struct {
	StaffID string
	KeyID   string
	Action  domain.HistoryAction
}

// History returns ledger entries newest first.
func (e *Engine) History(ctx context.Context, f HistoryFilter) []domain.KeyHistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.Ledger.List(ledger.Filter{StaffID: f.StaffID, KeyID: f.KeyID, Action: f.Action})
	return ledger.SortDesc(entries)
}
