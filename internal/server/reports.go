package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"keyline/internal/domain"
	"keyline/internal/engine"
	"keyline/internal/engine/auth"
)

func registerHistory(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        "/history",
		Summary:     "Checkout ledger, newest first; staff only see their own entries",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		StaffID string `query:"staff_id"`
		KeyID   string `query:"key_id"`
		Action  string `query:"action" enum:"checkout,return"`
	}) (*struct {
		Body []domain.KeyHistoryEntry `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := engine.HistoryFilter{StaffID: input.StaffID, KeyID: input.KeyID, Action: domain.HistoryAction(input.Action)}
		if !auth.HasPermission(p.Role, auth.PermHistoryReadAll) {
			f.StaffID = p.AccountID
		}
		return &struct {
			Body []domain.KeyHistoryEntry `json:"body"`
		}{Body: e.History(ctx, f)}, nil
	})
}

func registerReports(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "Generated reports, newest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.GeneratedReport `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermReports); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.GeneratedReport `json:"body"`
		}{Body: e.ListReports(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Render and archive a report",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body GenerateReportRequest `json:"body"`
	}) (*struct {
		Body domain.GeneratedReport `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermReports); err != nil {
			return nil, handleError(err)
		}
		rep, err := e.GenerateReport(ctx, input.Body.Name, input.Body.Format)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GeneratedReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "download-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}/download",
		Summary:     "Rendered report payload",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		if _, err := requirePermission(ctx, auth.PermReports); err != nil {
			return nil, handleError(err)
		}
		rep, data, contentType, err := e.ReportPayload(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        contentType,
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", rep.ID+"."+extension(rep.Format)),
			Body:               data,
		}, nil
	})
}

func extension(format string) string {
	switch format {
	case "csv":
		return "csv"
	case "html":
		return "html"
	case "markdown":
		return "md"
	default:
		return "txt"
	}
}
