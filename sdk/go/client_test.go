package keylinesdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"keyline/internal/config"
	"keyline/internal/engine"
	"keyline/internal/server"
)

func newAPI(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	e := engine.New(engine.Options{Policy: cfg.Policy})
	e.Seed(cfg.Seed)
	handler, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     server.AuthConfig{JWTSecret: "sdk-secret"},
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL + "/v1"
}

func TestClientWorkflow(t *testing.T) {
	ctx := context.Background()
	base := newAPI(t)
	anon := New(base, "")

	_, err := anon.Login(ctx, "supervisor", "bad", "supervisor")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %v", err)
	}

	res, err := anon.Login(ctx, "supervisor", "123456", "supervisor")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	c := New(base, res.Token)
	me, err := c.WhoAmI(ctx)
	if err != nil || me.Account.ID != "sv-default" {
		t.Fatalf("whoami: %+v %v", me, err)
	}

	key, err := c.CreateKey(ctx, KeyInput{KeyNumber: "KEY-100", Description: "Loading dock"})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	task, err := c.CreateTask(ctx, TaskInput{
		TaskName:     "Dock check",
		AssignedToID: "staff-2",
		KeyID:        key.ID,
		DueDate:      "2025-02-01",
		TodoItems:    []TodoItemInput{{Text: "lock gate"}},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := c.CompleteTask(ctx, task.ID); !errors.As(err, &apiErr) || apiErr.Code != "incomplete_checklist" {
		t.Fatalf("expected incomplete_checklist, got %v", err)
	}
	if _, changed, err := c.ToggleItem(ctx, task.ID, task.TodoItems[0].ID); err != nil || !changed {
		t.Fatalf("toggle: %v %v", changed, err)
	}
	if _, err := c.CompleteTask(ctx, task.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	available, err := c.Keys(ctx, "Available")
	if err != nil || len(available) != 2 {
		t.Fatalf("available keys = %+v %v", available, err)
	}
	history, err := c.History(ctx, HistoryQuery{KeyID: key.ID})
	if err != nil || len(history) != 2 {
		t.Fatalf("history = %+v %v", history, err)
	}

	rep, err := c.GenerateReport(ctx, "Daily", "csv")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	data, contentType, err := c.DownloadReport(ctx, rep.ID)
	if err != nil || !strings.HasPrefix(contentType, "text/csv") || len(data) == 0 {
		t.Fatalf("download: %q %v", contentType, err)
	}
	page, err := c.EventsPage(ctx, 2, "", "task")
	if err != nil || len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("events page = %+v %v", page, err)
	}
	if err := c.DeleteTask(ctx, task.ID, true); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
}
