package obs_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"keyline/internal/obs"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *obs.Metrics
	m.KeyMoved("checkout")
	m.SilentRelease(3)
	m.TasksCascaded("key_deleted", 1)
	m.SetInventory(1, 2, 3)
}

func TestCountersAndGauges(t *testing.T) {
	m := obs.NewMetrics()
	m.KeyMoved("checkout")
	m.KeyMoved("return")
	m.KeyMoved("return")
	m.TasksCascaded("account_deleted", 2)
	m.SetInventory(3, 1, 4)
	if got := testutil.ToFloat64(m.Checkouts); got != 1 {
		t.Fatalf("checkouts = %v", got)
	}
	if got := testutil.ToFloat64(m.Returns); got != 2 {
		t.Fatalf("returns = %v", got)
	}
	if got := testutil.ToFloat64(m.CascadedTasks.WithLabelValues("account_deleted")); got != 2 {
		t.Fatalf("cascaded = %v", got)
	}
	if got := testutil.ToFloat64(m.Keys.WithLabelValues("Available")); got != 3 {
		t.Fatalf("available gauge = %v", got)
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := obs.NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/keys/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	r.Handle("/metrics", m.Handler())
	srv := httptest.NewServer(r)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/keys/abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()

	res, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), `http_requests_total{method="GET",path="/keys/{id}",status="418"} 1`) {
		t.Fatalf("expected route-pattern label in metrics output")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}
