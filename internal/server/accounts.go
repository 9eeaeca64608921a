package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"keyline/internal/domain"
	"keyline/internal/engine"
	"keyline/internal/engine/auth"
)

func registerAccounts(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-accounts",
		Method:      http.MethodGet,
		Path:        "/accounts",
		Summary:     "List accounts",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:"supervisor,staff"`
	}) (*struct {
		Body []domain.UserAccount `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermAccountsRead); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.UserAccount `json:"body"`
		}{Body: e.ListAccounts(ctx, domain.Role(input.Role))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-account",
		Method:        http.MethodPost,
		Path:          "/accounts",
		Summary:       "Create account",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body AccountRequest `json:"body"`
	}) (*struct {
		Body domain.UserAccount `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermAccountsWrite); err != nil {
			return nil, handleError(err)
		}
		acct, err := e.CreateAccount(ctx, accountFromRequest(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserAccount `json:"body"`
		}{Body: acct}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-account",
		Method:      http.MethodPut,
		Path:        "/accounts/{id}",
		Summary:     "Replace account fields; staff may edit their own profile but not their role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body AccountRequest `json:"body"`
	}) (*struct {
		Body domain.UserAccount `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.AccountID != input.ID {
			if err := auth.Require(principal.Role, auth.PermAccountsWrite); err != nil {
				return nil, handleError(err)
			}
		} else if !principal.isSupervisor() && domain.Role(input.Body.Role) != principal.Role {
			return nil, handleError(auth.ForbiddenError{Permission: auth.PermAccountsWrite})
		}
		acct, err := e.UpdateAccount(ctx, input.ID, accountFromRequest(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserAccount `json:"body"`
		}{Body: acct}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-account",
		Method:        http.MethodDelete,
		Path:          "/accounts/{id}",
		Summary:       "Delete account and release the keys it holds",
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
		if _, err := requirePermission(ctx, auth.PermAccountsWrite); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteAccount(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
