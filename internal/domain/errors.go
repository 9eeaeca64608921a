package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrTaskCompleted      = errors.New("task already completed")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports a missing or malformed caller-supplied field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type DuplicateUsernameError struct {
	Username string
}

func (e *DuplicateUsernameError) Error() string {
	return fmt.Sprintf("username %q already exists", e.Username)
}

type ProtectedAccountError struct {
	ID string
}

func (e *ProtectedAccountError) Error() string {
	return fmt.Sprintf("account %s is protected and cannot be deleted", e.ID)
}

// IncompleteChecklistError is returned when a task still has open checklist items.
type IncompleteChecklistError struct {
	TaskID string
	Open   []string
}

func (e *IncompleteChecklistError) Error() string {
	return fmt.Sprintf("task %s has %d incomplete checklist item(s)", e.TaskID, len(e.Open))
}

// ReferencedError blocks deleting an entity that pending tasks still point at.
type ReferencedError struct {
	Kind    string
	ID      string
	TaskIDs []string
}

func (e *ReferencedError) Error() string {
	return fmt.Sprintf("%s %s is referenced by pending task(s) %s", e.Kind, e.ID, strings.Join(e.TaskIDs, ","))
}

func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
