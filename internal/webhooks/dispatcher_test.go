package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"keyline/internal/config"
	"keyline/internal/events"
	"keyline/internal/obs"
)

type received struct {
	mu        sync.Mutex
	types     []string
	signature string
	body      []byte
}

func newReceiver(t *testing.T, status int) (*httptest.Server, *received) {
	t.Helper()
	rec := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.types = append(rec.types, r.Header.Get("X-Keyline-Event"))
		rec.signature = r.Header.Get("X-Keyline-Signature")
		rec.body = body
		rec.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func appendEvents(t *testing.T, log *events.Log, types ...string) {
	t.Helper()
	for _, typ := range types {
		if err := log.Append(context.Background(), typ, "key", "k1", "sv-default", events.EventPayload{"key_number": "KEY-001"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestDispatchFiltersAndSigns(t *testing.T) {
	srv, rec := newReceiver(t, http.StatusOK)
	log := events.NewLog(nil, func() time.Time { return time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC) })
	appendEvents(t, log, "key.created")

	metrics := obs.NewMetrics()
	d := New(log, Options{
		Hooks:   []config.WebhookConfig{{URL: srv.URL, Events: []string{"key.*", "task.completed"}, Secret: "s3cret"}},
		Metrics: metrics,
	})
	appendEvents(t, log, "key.checkout", "account.created", "task.completed")
	d.DispatchOnce(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.types) != 2 || rec.types[0] != "key.checkout" || rec.types[1] != "task.completed" {
		t.Fatalf("delivered = %v", rec.types)
	}
	if rec.signature != Sign("s3cret", rec.body) {
		t.Fatalf("bad signature %q", rec.signature)
	}
	var evt map[string]any
	if err := json.Unmarshal(rec.body, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt["actor_id"] != "sv-default" {
		t.Fatalf("payload = %v", evt)
	}
	if got := testutil.ToFloat64(metrics.WebhookDeliveries.WithLabelValues("delivered")); got != 2 {
		t.Fatalf("delivered metric = %v", got)
	}
}

func TestDispatchRetriesAfterFailure(t *testing.T) {
	srv, rec := newReceiver(t, http.StatusInternalServerError)
	log := events.NewLog(nil, nil)
	d := New(log, Options{Hooks: []config.WebhookConfig{{URL: srv.URL}}})
	appendEvents(t, log, "key.created", "key.deleted")

	d.DispatchOnce(context.Background())
	d.DispatchOnce(context.Background())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	// the first event is attempted on each pass and the second never reached
	if len(rec.types) != 2 || rec.types[0] != "key.created" || rec.types[1] != "key.created" {
		t.Fatalf("attempts = %v", rec.types)
	}
}

func TestDisabledHookSkipped(t *testing.T) {
	srv, rec := newReceiver(t, http.StatusOK)
	log := events.NewLog(nil, nil)
	off := false
	d := New(log, Options{Hooks: []config.WebhookConfig{{URL: srv.URL, Enabled: &off}}})
	appendEvents(t, log, "key.created")
	d.DispatchOnce(context.Background())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.types) != 0 {
		t.Fatalf("disabled hook received %v", rec.types)
	}
}

func TestEventFilter(t *testing.T) {
	cases := []struct {
		events []string
		typ    string
		want   bool
	}{
		{nil, "anything", true},
		{[]string{"*"}, "key.created", true},
		{[]string{"task.completed"}, "task.completed", true},
		{[]string{"task.completed"}, "task.created", false},
		{[]string{"key.*"}, "key.return", true},
		{[]string{"key.*"}, "keys.return", false},
		{[]string{" ", ""}, "x", true},
	}
	for _, tc := range cases {
		if got := newEventFilter(tc.events).match(tc.typ); got != tc.want {
			t.Fatalf("filter %v match %q = %v, want %v", tc.events, tc.typ, got, tc.want)
		}
	}
}
