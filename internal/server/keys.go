package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"keyline/internal/domain"
	"keyline/internal/engine"
	"keyline/internal/engine/auth"
)

func registerKeys(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-keys",
		Method:      http.MethodGet,
		Path:        "/keys",
		Summary:     "List keys in registry order",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"Available,Assigned"`
	}) (*struct {
		Body []domain.Key `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermKeysRead); err != nil {
			return nil, handleError(err)
		}
		var keys []domain.Key
		if domain.KeyStatus(input.Status) == domain.KeyAvailable {
			keys = e.AvailableKeys(ctx)
		} else {
			keys = e.ListKeys(ctx, domain.KeyStatus(input.Status))
		}
		return &struct {
			Body []domain.Key `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-key",
		Method:      http.MethodGet,
		Path:        "/keys/{id}",
		Summary:     "Get key",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Key `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermKeysRead); err != nil {
			return nil, handleError(err)
		}
		k, err := e.GetKey(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Key `json:"body"`
		}{Body: k}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-key",
		Method:        http.MethodPost,
		Path:          "/keys",
		Summary:       "Register an Available key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body KeyRequest `json:"body"`
	}) (*struct {
		Body domain.Key `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermKeysWrite); err != nil {
			return nil, handleError(err)
		}
		k, err := e.CreateKey(ctx, engine.KeyInput{KeyNumber: input.Body.KeyNumber, Description: input.Body.Description})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Key `json:"body"`
		}{Body: k}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-key",
		Method:      http.MethodPut,
		Path:        "/keys/{id}",
		Summary:     "Edit key number and description",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string     `path:"id"`
		Body KeyRequest `json:"body"`
	}) (*struct {
		Body domain.Key `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermKeysWrite); err != nil {
			return nil, handleError(err)
		}
		k, err := e.UpdateKey(ctx, input.ID, engine.KeyInput{KeyNumber: input.Body.KeyNumber, Description: input.Body.Description})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Key `json:"body"`
		}{Body: k}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-key",
		Method:        http.MethodDelete,
		Path:          "/keys/{id}",
		Summary:       "Delete key",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, err := requirePermission(ctx, auth.PermKeysWrite); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
