package engine

import (
	"context"
	"strings"

	"keyline/internal/config"
	"keyline/internal/domain"
	"keyline/internal/events"
)

// KeyInput carries the fields a caller may set on a key.
type KeyInput struct {
	KeyNumber   string
	Description string
}

func (in *KeyInput) validate() error {
	in.KeyNumber = strings.TrimSpace(in.KeyNumber)
	in.Description = strings.TrimSpace(in.Description)
	if in.KeyNumber == "" {
		return &domain.ValidationError{Field: "key_number"}
	}
	return nil
}

// CreateKey registers an Available key.
func (e *Engine) CreateKey(ctx context.Context, in KeyInput) (domain.Key, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	if err := in.validate(); err != nil {
		return domain.Key{}, err
	}
	k := e.Inventory.Create(domain.Key{
		KeyNumber:   in.KeyNumber,
		Description: in.Description,
		Status:      domain.KeyAvailable,
	})
	e.emit(ctx, "key.created", "key", k.ID, events.EventPayload{"key_number": k.KeyNumber})
	return k, nil
}

// UpdateKey edits the key number and description. Assignment fields are left
// alone; pending tasks pick up the new key number.
func (e *Engine) UpdateKey(ctx context.Context, id string, in KeyInput) (domain.Key, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	if err := in.validate(); err != nil {
		return domain.Key{}, err
	}
	current, ok := e.Inventory.Get(id)
	if !ok {
		return domain.Key{}, domain.NotFound("key", id)
	}
	current.KeyNumber = in.KeyNumber
	current.Description = in.Description
	updated, err := e.Inventory.Update(id, current)
	if err != nil {
		return domain.Key{}, err
	}
	for i := range e.tasks {
		if e.tasks[i].KeyID == id && e.tasks[i].Status == domain.TaskPending {
			e.tasks[i].KeyNumber = updated.KeyNumber
		}
	}
	e.emit(ctx, "key.updated", "key", id, events.EventPayload{"key_number": updated.KeyNumber})
	return updated, nil
}

// DeleteKey removes a key. Pending tasks that reference it follow the orphan
// policy; no ledger entry is written.
func (e *Engine) DeleteKey(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	if _, ok := e.Inventory.Get(id); !ok {
		return domain.NotFound("key", id)
	}
	orphans := e.pendingTaskIDs(func(t domain.Task) bool { return t.KeyID == id })
	if len(orphans) > 0 && e.Policy.OrphanTasks == config.OrphanForbid {
		return &domain.ReferencedError{Kind: "key", ID: id, TaskIDs: orphans}
	}
	removed, err := e.Inventory.Delete(id)
	if err != nil {
		return err
	}
	e.removeTasks(orphans)
	e.Metrics.TasksCascaded("key_deleted", len(orphans))
	e.emit(ctx, "key.deleted", "key", id, events.EventPayload{
		"key_number":      removed.KeyNumber,
		"cancelled_tasks": orphans,
	})
	return nil
}

func (e *Engine) GetKey(ctx context.Context, id string) (domain.Key, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k, ok := e.Inventory.Get(id)
	if !ok {
		return domain.Key{}, domain.NotFound("key", id)
	}
	return k, nil
}

// ListKeys returns keys in registry order, filtered by status when set.
func (e *Engine) ListKeys(ctx context.Context, status domain.KeyStatus) []domain.Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := []domain.Key{}
	for _, k := range e.Inventory.List() {
		if status == "" || k.Status == status {
			out = append(out, k)
		}
	}
	return out
}

// AvailableKeys is the candidate pool offered when building a task.
func (e *Engine) AvailableKeys(ctx context.Context) []domain.Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.Inventory.Available()
	if out == nil {
		out = []domain.Key{}
	}
	return out
}
