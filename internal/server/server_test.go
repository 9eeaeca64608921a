package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"keyline/internal/config"
	"keyline/internal/domain"
	"keyline/internal/engine"
	"keyline/internal/obs"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	metrics := obs.NewMetrics()
	e := engine.New(engine.Options{Policy: cfg.Policy, Metrics: metrics})
	e.Seed(cfg.Seed)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret"},
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, username, role string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": username,
		"password": "123456",
		"role":     role,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s status %d: %s", username, res.StatusCode, data)
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if out.Account.Password != "" {
		t.Fatalf("login leaked password")
	}
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, data)
	}
	return env.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/keys", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/keys", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": "john", "password": "wrong", "role": "staff",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status %d: %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/healthz", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", res.StatusCode)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sup := login(t, srv, "supervisor", "supervisor")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/keys", map[string]any{
		"key_number": "K1", "description": "Archive",
	}, sup)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, data)
	}
	var key domain.Key
	json.Unmarshal(data, &key)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"task_name":      "Archive sweep",
		"assigned_to_id": "staff-2",
		"key_id":         key.ID,
		"due_date":       "2025-02-01",
		"todo_items":     []map[string]any{{"text": "a"}, {"text": "b"}},
	}, sup)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, data)
	}
	var task domain.Task
	json.Unmarshal(data, &task)
	if task.AssignedTo != "Jane Doe" || len(task.TodoItems) != 2 {
		t.Fatalf("unexpected task %+v", task)
	}

	jane := login(t, srv, "jane", "staff")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/complete", nil, jane)
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "incomplete_checklist" {
		t.Fatalf("expected incomplete_checklist, got %d %s", res.StatusCode, data)
	}
	for _, item := range task.TodoItems {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/items/"+item.ID+"/toggle", nil, jane)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("toggle status %d: %s", res.StatusCode, data)
		}
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/complete", nil, jane)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/keys/"+key.ID, nil, sup)
	json.Unmarshal(data, &key)
	if key.Status != domain.KeyAvailable {
		t.Fatalf("key not returned: %+v", key)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/history", nil, jane)
	var history []domain.KeyHistoryEntry
	json.Unmarshal(data, &history)
	if len(history) != 2 || history[0].Action != domain.ActionReturn {
		t.Fatalf("jane history = %+v", history)
	}
	for _, h := range history {
		if h.StaffID != "staff-2" {
			t.Fatalf("staff saw someone else's history: %+v", h)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?type=key", nil, sup)
	var page paginatedEvents
	json.Unmarshal(data, &page)
	if res.StatusCode != http.StatusOK || len(page.Items) != 3 {
		t.Fatalf("key events %d: %s", res.StatusCode, data)
	}
	if page.Items[1].ActorID != "sv-default" || page.Items[2].ActorID != "staff-2" {
		t.Fatalf("event actors = %+v", page.Items)
	}
}

func TestStaffPermissions(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	jane := login(t, srv, "jane", "staff")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/keys", map[string]any{"key_number": "K9"}, jane)
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected forbidden, got %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, jane)
	var tasks []domain.Task
	json.Unmarshal(data, &tasks)
	if res.StatusCode != http.StatusOK || len(tasks) != 0 {
		t.Fatalf("jane should see no tasks: %d %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/1/items/t1/toggle", nil, jane)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("jane toggled john's task: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodPut, srv.URL+"/v1/accounts/staff-2", map[string]any{
		"username": "jane", "name": "Jane D.", "email": "jane@example.com", "phone": "555-0102", "role": "supervisor",
	}, jane)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("staff promoted themselves: %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/accounts/staff-2", map[string]any{
		"username": "jane", "name": "Jane D.", "email": "jane@example.com", "phone": "555-0102", "role": "staff",
	}, jane)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("self update status %d: %s", res.StatusCode, data)
	}
}

func TestAccountErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sup := login(t, srv, "supervisor", "supervisor")

	res, data := doJSON(t, client, http.MethodDelete, srv.URL+"/v1/accounts/sv-default", nil, sup)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "protected_account" {
		t.Fatalf("expected protected_account, got %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/accounts", map[string]any{
		"username": "john", "password": "x", "name": "Other John", "email": "o@example.com", "phone": "1", "role": "staff",
	}, sup)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "duplicate_username" {
		t.Fatalf("expected duplicate_username, got %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/accounts", map[string]any{
		"username": "kim", "password": "x", "name": "Kim", "email": "", "phone": "1", "role": "staff",
	}, sup)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d %s", res.StatusCode, data)
	}

	john := login(t, srv, "john", "staff")
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/accounts/staff-1", nil, sup)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, john)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deleted account token still valid: %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/keys?status=Available", nil, sup)
	var keys []domain.Key
	json.Unmarshal(data, &keys)
	if len(keys) != 2 {
		t.Fatalf("released key missing from available list: %s", data)
	}
}

func TestReportsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sup := login(t, srv, "supervisor", "supervisor")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports", map[string]any{"name": "Weekly", "format": "markdown"}, sup)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("generate status %d: %s", res.StatusCode, data)
	}
	var rep domain.GeneratedReport
	json.Unmarshal(data, &rep)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports/"+rep.ID+"/download", nil, sup)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("download status %d: %s", res.StatusCode, data)
	}
	if !strings.HasPrefix(res.Header.Get("Content-Type"), "text/markdown") || !strings.Contains(string(data), "# Weekly") {
		t.Fatalf("unexpected download %q: %s", res.Header.Get("Content-Type"), data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/stats", nil, sup)
	var stats domain.Stats
	json.Unmarshal(data, &stats)
	if stats.TotalKeys != 2 || stats.PendingTasks != 1 {
		t.Fatalf("stats = %s", data)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
}

func TestOpenAPISpec(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var spec map[string]any
	if err := json.Unmarshal(data, &spec); err != nil {
		t.Fatalf("decode spec: %v", err)
	}
	paths, _ := spec["paths"].(map[string]any)
	if _, ok := paths["/v1/tasks/{id}/complete"]; !ok {
		t.Fatalf("complete route missing from spec")
	}
}
