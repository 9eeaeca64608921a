package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"keyline/internal/domain"
	"keyline/internal/engine"
	"keyline/internal/engine/auth"
)

// workableTask loads a task the caller may work on: supervisors any task,
// staff only their own. Others see not found.
func workableTask(ctx context.Context, e *engine.Engine, taskID string) (domain.Task, error) {
	p, err := requirePermission(ctx, auth.PermTasksWork)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !auth.HasPermission(p.Role, auth.PermTasksReadAll) && t.AssignedToID != p.AccountID {
		return domain.Task{}, domain.NotFound("task", taskID)
	}
	return t, nil
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks; staff only see their own",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		AssignedToID string `query:"assigned_to_id"`
		KeyID        string `query:"key_id"`
		Status       string `query:"status" enum:"pending,completed"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, auth.PermTasksWork)
		if err != nil {
			return nil, handleError(err)
		}
		f := engine.TaskFilter{AssignedToID: input.AssignedToID, KeyID: input.KeyID, Status: domain.TaskStatus(input.Status)}
		if !auth.HasPermission(p.Role, auth.PermTasksReadAll) {
			f.AssignedToID = p.AccountID
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: e.ListTasks(ctx, f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := workableTask(ctx, e, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task and check its key out to the assignee",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body TaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := requirePermission(ctx, auth.PermTasksWrite); err != nil {
			return nil, handleError(err)
		}
		t, err := e.CreateTask(ctx, taskInput(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Replace a pending task, moving its key when key or assignee change",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body TaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermTasksWrite); err != nil {
			return nil, handleError(err)
		}
		t, err := e.UpdateTask(ctx, input.ID, taskInput(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task, returning its key unless return_key=false",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		ReturnKey bool   `query:"return_key" default:"true"`
	}) (*struct{}, error) {
		if _, err := requirePermission(ctx, auth.PermTasksWrite); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteTask(ctx, input.ID, input.ReturnKey); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-todo-item",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/items/{item_id}/toggle",
		Summary:     "Flip one checklist item",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		ItemID string `path:"item_id"`
	}) (*struct {
		Body ToggleResponse `json:"body"`
	}, error) {
		if _, err := workableTask(ctx, e, input.ID); err != nil {
			return nil, handleError(err)
		}
		t, changed := e.ToggleTodoItem(ctx, input.ID, input.ItemID)
		return &struct {
			Body ToggleResponse `json:"body"`
		}{Body: ToggleResponse{Task: t, Changed: changed}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Complete a task whose checklist is done and return its key",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if _, err := workableTask(ctx, e, input.ID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.CompleteTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}
