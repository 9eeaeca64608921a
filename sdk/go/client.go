package keylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"keyline/internal/domain"
)

// Client is a minimal Keyline HTTP API client. BaseURL includes the API base
// path, e.g. http://127.0.0.1:8080/v1.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

type (
	Account  = domain.UserAccount
	Key      = domain.Key
	Task     = domain.Task
	TodoItem = domain.TodoItem
	History  = domain.KeyHistoryEntry
	Report   = domain.GeneratedReport
	Stats    = domain.Stats
	Snapshot = domain.Snapshot
)

type LoginResult struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	Account   Account `json:"account"`
}

type WhoAmI struct {
	Account     Account  `json:"account"`
	Permissions []string `json:"permissions"`
	Session     *Account `json:"session,omitempty"`
}

// AccountInput is the create/update body. An empty Password on update keeps
// the stored one.
type AccountInput struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type KeyInput struct {
	KeyNumber   string `json:"key_number"`
	Description string `json:"description,omitempty"`
}

type TodoItemInput struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	Completed bool   `json:"completed,omitempty"`
}

type TaskInput struct {
	TaskName     string          `json:"task_name"`
	AssignedToID string          `json:"assigned_to_id"`
	KeyID        string          `json:"key_id,omitempty"`
	DueDate      string          `json:"due_date"`
	TodoItems    []TodoItemInput `json:"todo_items,omitempty"`
}

type TaskQuery struct {
	AssignedToID string
	KeyID        string
	Status       string
}

type HistoryQuery struct {
	StaffID string
	KeyID   string
	Action  string
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	UID        string         `json:"uid"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message are filled when the
// body is the standard error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Login(ctx context.Context, username, password, role string) (LoginResult, error) {
	var resp LoginResult
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]string{
		"username": username,
		"password": password,
		"role":     role,
	}, &resp)
	return resp, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "auth/logout", nil, nil)
}

func (c *Client) WhoAmI(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// Accounts lists accounts; an empty role lists all.
func (c *Client) Accounts(ctx context.Context, role string) ([]Account, error) {
	var resp []Account
	err := c.do(ctx, http.MethodGet, withQuery("accounts", url.Values{"role": {role}}), nil, &resp)
	return resp, err
}

func (c *Client) CreateAccount(ctx context.Context, in AccountInput) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodPost, "accounts", in, &resp)
	return resp, err
}

func (c *Client) UpdateAccount(ctx context.Context, id string, in AccountInput) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodPut, "accounts/"+url.PathEscape(id), in, &resp)
	return resp, err
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "accounts/"+url.PathEscape(id), nil, nil)
}

// Keys lists keys; status is "", "Available" or "Assigned".
func (c *Client) Keys(ctx context.Context, status string) ([]Key, error) {
	var resp []Key
	err := c.do(ctx, http.MethodGet, withQuery("keys", url.Values{"status": {status}}), nil, &resp)
	return resp, err
}

func (c *Client) GetKey(ctx context.Context, id string) (Key, error) {
	var resp Key
	err := c.do(ctx, http.MethodGet, "keys/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) CreateKey(ctx context.Context, in KeyInput) (Key, error) {
	var resp Key
	err := c.do(ctx, http.MethodPost, "keys", in, &resp)
	return resp, err
}

func (c *Client) UpdateKey(ctx context.Context, id string, in KeyInput) (Key, error) {
	var resp Key
	err := c.do(ctx, http.MethodPut, "keys/"+url.PathEscape(id), in, &resp)
	return resp, err
}

func (c *Client) DeleteKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "keys/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Tasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	var resp []Task
	endpoint := withQuery("tasks", url.Values{
		"assigned_to_id": {q.AssignedToID},
		"key_id":         {q.KeyID},
		"status":         {q.Status},
	})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, in TaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, "tasks/"+url.PathEscape(id), in, &resp)
	return resp, err
}

// DeleteTask removes a task; returnKey=false leaves its key assigned.
func (c *Client) DeleteTask(ctx context.Context, id string, returnKey bool) error {
	endpoint := withQuery("tasks/"+url.PathEscape(id), url.Values{"return_key": {strconv.FormatBool(returnKey)}})
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ToggleItem flips one checklist item and reports whether anything changed.
func (c *Client) ToggleItem(ctx context.Context, taskID, itemID string) (Task, bool, error) {
	var resp struct {
		Task    Task `json:"task"`
		Changed bool `json:"changed"`
	}
	endpoint := fmt.Sprintf("tasks/%s/items/%s/toggle", url.PathEscape(taskID), url.PathEscape(itemID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Task, resp.Changed, err
}

func (c *Client) CompleteTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/complete", url.PathEscape(id)), nil, &resp)
	return resp, err
}

func (c *Client) History(ctx context.Context, q HistoryQuery) ([]History, error) {
	var resp []History
	endpoint := withQuery("history", url.Values{
		"staff_id": {q.StaffID},
		"key_id":   {q.KeyID},
		"action":   {q.Action},
	})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Reports(ctx context.Context) ([]Report, error) {
	var resp []Report
	err := c.do(ctx, http.MethodGet, "reports", nil, &resp)
	return resp, err
}

func (c *Client) GenerateReport(ctx context.Context, name, format string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports", map[string]string{"name": name, "format": format}, &resp)
	return resp, err
}

// DownloadReport returns the rendered payload and its content type.
func (c *Client) DownloadReport(ctx context.Context, id string) ([]byte, string, error) {
	res, err := c.send(ctx, http.MethodGet, fmt.Sprintf("reports/%s/download", url.PathEscape(id)), nil)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	return data, res.Header.Get("Content-Type"), err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodGet, "snapshot", nil, &resp)
	return resp, err
}

// EventsPage returns events after cursor, optionally filtered by type or
// type prefix.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor, eventType string) (PaginatedEvents, error) {
	v := url.Values{"after": {cursor}, "type": {eventType}}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", v), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	res, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode != http.StatusNoContent {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, decodeAPIError(resp.StatusCode, b)
	}
	return resp, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

// withQuery appends the non-empty values of v.
func withQuery(endpoint string, v url.Values) string {
	q := url.Values{}
	for k, vals := range v {
		for _, val := range vals {
			if val != "" {
				q.Add(k, val)
			}
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
