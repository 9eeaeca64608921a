package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"keyline/internal/domain"
	"keyline/internal/events"
	"keyline/internal/ids"
)

// TaskInput carries the caller-editable task fields. Denormalized names are
// always derived from the referenced account and key.
type TaskInput struct {
	TaskName     string
	AssignedToID string
	KeyID        string
	DueDate      string
	TodoItems    []domain.TodoItem
}

type TaskFilter struct {
	AssignedToID string
	KeyID        string
	Status       domain.TaskStatus
}

func (f TaskFilter) match(t domain.Task) bool {
	if f.AssignedToID != "" && t.AssignedToID != f.AssignedToID {
		return false
	}
	if f.KeyID != "" && t.KeyID != f.KeyID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

func (e *Engine) taskIndex(id string) int {
	for i, t := range e.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) cloneTasks(keep func(domain.Task) bool) []domain.Task {
	out := []domain.Task{}
	for _, t := range e.tasks {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// validateTask checks required fields and references, returning the resolved
// assignee name and key number.
func (e *Engine) validateTask(in *TaskInput) (string, string, error) {
	in.TaskName = strings.TrimSpace(in.TaskName)
	in.AssignedToID = strings.TrimSpace(in.AssignedToID)
	in.KeyID = strings.TrimSpace(in.KeyID)
	in.DueDate = strings.TrimSpace(in.DueDate)
	if in.TaskName == "" {
		return "", "", &domain.ValidationError{Field: "task_name"}
	}
	if in.AssignedToID == "" {
		return "", "", &domain.ValidationError{Field: "assigned_to_id"}
	}
	if in.DueDate == "" {
		return "", "", &domain.ValidationError{Field: "due_date"}
	}
	if _, err := time.Parse(time.DateOnly, in.DueDate); err != nil {
		return "", "", &domain.ValidationError{Field: "due_date", Reason: "must be YYYY-MM-DD"}
	}
	assignee, ok := e.Identity.Get(in.AssignedToID)
	if !ok {
		return "", "", &domain.ValidationError{Field: "assigned_to_id", Reason: "unknown account"}
	}
	if assignee.Role != domain.RoleStaff {
		return "", "", &domain.ValidationError{Field: "assigned_to_id", Reason: "tasks are assigned to staff accounts"}
	}
	keyNumber := ""
	if in.KeyID != "" {
		k, ok := e.Inventory.Get(in.KeyID)
		if !ok {
			return "", "", &domain.ValidationError{Field: "key_id", Reason: "unknown key"}
		}
		keyNumber = k.KeyNumber
	}
	return assignee.Name, keyNumber, nil
}

// checklist trims texts, drops blank items and gives new items an id.
func checklist(items []domain.TodoItem) []domain.TodoItem {
	out := make([]domain.TodoItem, 0, len(items))
	seen := map[string]bool{}
	for _, item := range items {
		item.Text = strings.TrimSpace(item.Text)
		if item.Text == "" {
			continue
		}
		if item.ID == "" || seen[item.ID] {
			item.ID = ids.New()
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out
}

// assignTaskKey binds the task's key to its assignee. A refused assignment
// leaves the task pointing at an unbound key; it is logged and counted.
func (e *Engine) assignTaskKey(ctx context.Context, t domain.Task) {
	if t.KeyID == "" || t.AssignedToID == "" {
		return
	}
	if e.Inventory.Assign(t.KeyID, t.AssignedToID) {
		return
	}
	e.Metrics.AssignSkip()
	e.Logger.WarnContext(ctx, "key not assigned to task",
		slog.String("task_id", t.ID), slog.String("key_id", t.KeyID), slog.String("assignee_id", t.AssignedToID))
}

// releaseTaskKey returns the task's key only while it is held by the task's
// assignee, so a key re-bound elsewhere is never pulled away.
func (e *Engine) releaseTaskKey(t domain.Task) bool {
	if t.KeyID == "" {
		return false
	}
	k, ok := e.Inventory.Get(t.KeyID)
	if !ok || k.Status != domain.KeyAssigned || k.AssignedTo != t.AssignedToID {
		return false
	}
	return e.Inventory.Unassign(t.KeyID)
}

// CreateTask stores a pending task and checks its key out to the assignee.
func (e *Engine) CreateTask(ctx context.Context, in TaskInput) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	name, keyNumber, err := e.validateTask(&in)
	if err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:           ids.New(),
		TaskName:     in.TaskName,
		AssignedTo:   name,
		AssignedToID: in.AssignedToID,
		KeyID:        in.KeyID,
		KeyNumber:    keyNumber,
		DueDate:      in.DueDate,
		TodoItems:    checklist(in.TodoItems),
		Status:       domain.TaskPending,
	}
	e.tasks = append(e.tasks, t)
	e.assignTaskKey(ctx, t)
	e.emit(ctx, "task.created", "task", t.ID, events.EventPayload{
		"assigned_to_id": t.AssignedToID,
		"key_id":         t.KeyID,
		"items":          len(t.TodoItems),
	})
	return t.Clone(), nil
}

// UpdateTask replaces a pending task's fields and moves its key as needed:
// a changed key returns the old key and checks out the new one; a changed
// assignee on the same key produces a return followed by a checkout.
func (e *Engine) UpdateTask(ctx context.Context, id string, in TaskInput) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	idx := e.taskIndex(id)
	if idx < 0 {
		return domain.Task{}, domain.NotFound("task", id)
	}
	old := e.tasks[idx]
	if old.Status == domain.TaskCompleted {
		return domain.Task{}, domain.ErrTaskCompleted
	}
	name, keyNumber, err := e.validateTask(&in)
	if err != nil {
		return domain.Task{}, err
	}
	updated := domain.Task{
		ID:           old.ID,
		TaskName:     in.TaskName,
		AssignedTo:   name,
		AssignedToID: in.AssignedToID,
		KeyID:        in.KeyID,
		KeyNumber:    keyNumber,
		DueDate:      in.DueDate,
		TodoItems:    checklist(in.TodoItems),
		Status:       old.Status,
	}
	switch {
	case old.KeyID != updated.KeyID:
		e.releaseTaskKey(old)
		e.assignTaskKey(ctx, updated)
	case old.AssignedToID != updated.AssignedToID && updated.KeyID != "":
		e.releaseTaskKey(old)
		e.assignTaskKey(ctx, updated)
	}
	e.tasks[idx] = updated
	e.emit(ctx, "task.updated", "task", id, events.EventPayload{
		"assigned_to_id":    updated.AssignedToID,
		"key_id":            updated.KeyID,
		"previous_assignee": old.AssignedToID,
		"previous_key_id":   old.KeyID,
	})
	return updated.Clone(), nil
}

// DeleteTask erases a task. With returnKey a pending task's key goes back to
// inventory first.
func (e *Engine) DeleteTask(ctx context.Context, id string, returnKey bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	idx := e.taskIndex(id)
	if idx < 0 {
		return domain.NotFound("task", id)
	}
	t := e.tasks[idx]
	returned := false
	if returnKey && t.Status == domain.TaskPending {
		returned = e.releaseTaskKey(t)
	}
	e.tasks = append(e.tasks[:idx], e.tasks[idx+1:]...)
	e.emit(ctx, "task.deleted", "task", id, events.EventPayload{"key_returned": returned})
	return nil
}

// ToggleTodoItem flips one checklist item of a pending task. Unknown ids are
// ignored; the bool reports whether anything changed.
func (e *Engine) ToggleTodoItem(ctx context.Context, taskID, itemID string) (domain.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.taskIndex(taskID)
	if idx < 0 {
		return domain.Task{}, false
	}
	t := &e.tasks[idx]
	if t.Status != domain.TaskPending {
		return t.Clone(), false
	}
	for i := range t.TodoItems {
		if t.TodoItems[i].ID == itemID {
			t.TodoItems[i].Completed = !t.TodoItems[i].Completed
			e.emit(ctx, "task.item_toggled", "task", taskID, events.EventPayload{
				"item_id":   itemID,
				"completed": t.TodoItems[i].Completed,
			})
			return t.Clone(), true
		}
	}
	return t.Clone(), false
}

// CompleteTask closes a task whose checklist is fully ticked and returns its key.
func (e *Engine) CompleteTask(ctx context.Context, id string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle(ctx)

	idx := e.taskIndex(id)
	if idx < 0 {
		return domain.Task{}, domain.NotFound("task", id)
	}
	t := &e.tasks[idx]
	if t.Status == domain.TaskCompleted {
		return domain.Task{}, domain.ErrTaskCompleted
	}
	if open := t.OpenItems(); len(open) > 0 {
		e.Metrics.ChecklistRejected()
		return domain.Task{}, &domain.IncompleteChecklistError{TaskID: id, Open: open}
	}
	t.Status = domain.TaskCompleted
	returned := e.releaseTaskKey(*t)
	e.Metrics.TaskCompleted()
	e.emit(ctx, "task.completed", "task", id, events.EventPayload{"key_id": t.KeyID, "key_returned": returned})
	return t.Clone(), nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.taskIndex(id)
	if idx < 0 {
		return domain.Task{}, domain.NotFound("task", id)
	}
	return e.tasks[idx].Clone(), nil
}

// ListTasks returns matching tasks in insertion order.
func (e *Engine) ListTasks(ctx context.Context, f TaskFilter) []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cloneTasks(f.match)
}

// pendingTaskIDs lists pending tasks accepted by match. Callers hold e.mu.
func (e *Engine) pendingTaskIDs(match func(domain.Task) bool) []string {
	var out []string
	for _, t := range e.tasks {
		if t.Status == domain.TaskPending && match(t) {
			out = append(out, t.ID)
		}
	}
	return out
}

func (e *Engine) removeTasks(taskIDs []string) {
	if len(taskIDs) == 0 {
		return
	}
	drop := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		drop[id] = true
	}
	kept := e.tasks[:0]
	for _, t := range e.tasks {
		if !drop[t.ID] {
			kept = append(kept, t)
		}
	}
	e.tasks = kept
}
