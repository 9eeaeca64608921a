package auth_test

import (
	"context"
	"errors"
	"testing"

	"keyline/internal/domain"
	"keyline/internal/engine/auth"
)

func TestRequire(t *testing.T) {
	if err := auth.Require(domain.RoleSupervisor, auth.PermKeysWrite); err != nil {
		t.Fatalf("supervisor should write keys: %v", err)
	}
	err := auth.Require(domain.RoleStaff, auth.PermKeysWrite)
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) || fe.Permission != auth.PermKeysWrite {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if auth.HasPermission(domain.Role("guest"), auth.PermKeysRead) {
		t.Fatalf("unknown role must have no permissions")
	}
}

func TestPermissionsReturnsCopy(t *testing.T) {
	perms := auth.Permissions(domain.RoleStaff)
	perms[0] = "tampered"
	if auth.Permissions(domain.RoleStaff)[0] == "tampered" {
		t.Fatalf("permission table mutated")
	}
}

func TestActorContext(t *testing.T) {
	ctx := auth.WithActor(context.Background(), "staff-1")
	if got := auth.ActorFromContext(ctx); got != "staff-1" {
		t.Fatalf("actor = %q", got)
	}
	if got := auth.ActorFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty actor, got %q", got)
	}
}
