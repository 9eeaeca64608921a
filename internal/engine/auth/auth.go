package auth

import (
	"context"
	"fmt"

	"keyline/internal/domain"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

const (
	PermAccountsRead   = "accounts.read"
	PermAccountsWrite  = "accounts.write"
	PermKeysRead       = "keys.read"
	PermKeysWrite      = "keys.write"
	PermTasksReadAll   = "tasks.read_all"
	PermTasksWrite     = "tasks.write"
	PermTasksWork      = "tasks.work"
	PermHistoryReadAll = "history.read_all"
	PermReports        = "reports.manage"
	PermSnapshot       = "snapshot.read"
	PermEvents         = "events.read"
)

var rolePermissions = map[domain.Role][]string{
	domain.RoleSupervisor: {
		PermAccountsRead, PermAccountsWrite,
		PermKeysRead, PermKeysWrite,
		PermTasksReadAll, PermTasksWrite, PermTasksWork,
		PermHistoryReadAll, PermReports, PermSnapshot, PermEvents,
	},
	domain.RoleStaff: {
		PermKeysRead, PermTasksWork,
	},
}

// Permissions lists what a role may do.
func Permissions(role domain.Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

func HasPermission(role domain.Role, perm string) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Require returns ForbiddenError when role lacks perm.
func Require(role domain.Role, perm string) error {
	if HasPermission(role, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}

type actorKey struct{}

// WithActor tags ctx with the account performing an operation; the engine
// records it on audit events.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}
