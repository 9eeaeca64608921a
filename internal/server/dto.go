package server

import (
	"encoding/json"

	"keyline/internal/domain"
	"keyline/internal/engine"
)

// Request payloads

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role" enum:"supervisor,staff"`
}

type AccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role" enum:"supervisor,staff"`
}

type KeyRequest struct {
	KeyNumber   string `json:"key_number"`
	Description string `json:"description,omitempty"`
}

type TodoItemRequest struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	Completed bool   `json:"completed,omitempty"`
}

type TaskRequest struct {
	TaskName     string            `json:"task_name"`
	AssignedToID string            `json:"assigned_to_id"`
	KeyID        string            `json:"key_id,omitempty"`
	DueDate      string            `json:"due_date" example:"2025-01-25"`
	TodoItems    []TodoItemRequest `json:"todo_items,omitempty"`
}

type GenerateReportRequest struct {
	Name   string `json:"name"`
	Format string `json:"format,omitempty" enum:"text,csv,html,markdown"`
}

// Response payloads

type LoginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt string             `json:"expires_at" format:"date-time"`
	Account   domain.UserAccount `json:"account"`
}

type WhoAmIResponse struct {
	Account     domain.UserAccount  `json:"account"`
	Permissions []string            `json:"permissions"`
	Session     *domain.UserAccount `json:"session,omitempty"`
}

type ToggleResponse struct {
	Task    domain.Task `json:"task"`
	Changed bool        `json:"changed"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	UID        string         `json:"uid"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func accountFromRequest(in AccountRequest) domain.UserAccount {
	return domain.UserAccount{
		Username: in.Username,
		Password: in.Password,
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Role:     domain.Role(in.Role),
	}
}

func taskInput(in TaskRequest) engine.TaskInput {
	items := make([]domain.TodoItem, 0, len(in.TodoItems))
	for _, item := range in.TodoItems {
		items = append(items, domain.TodoItem{ID: item.ID, Text: item.Text, Completed: item.Completed})
	}
	return engine.TaskInput{
		TaskName:     in.TaskName,
		AssignedToID: in.AssignedToID,
		KeyID:        in.KeyID,
		DueDate:      in.DueDate,
		TodoItems:    items,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		UID:        e.UID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
