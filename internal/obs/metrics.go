package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the custody and HTTP collectors on one registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Checkouts           prometheus.Counter
	Returns             prometheus.Counter
	SilentReleases      prometheus.Counter
	AssignSkipped       prometheus.Counter
	TasksCompleted      prometheus.Counter
	ChecklistRejections prometheus.Counter
	CascadedTasks       *prometheus.CounterVec
	Keys                *prometheus.GaugeVec
	PendingTasks        prometheus.Gauge
	WebhookDeliveries   *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyline_key_checkouts_total",
			Help: "Keys moved from Available to Assigned.",
		}),
		Returns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyline_key_returns_total",
			Help: "Keys moved from Assigned to Available with a ledger entry.",
		}),
		SilentReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyline_key_silent_releases_total",
			Help: "Keys released by account deletion without a ledger entry.",
		}),
		AssignSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyline_key_assign_skipped_total",
			Help: "Task-driven assignments that were ignored because the key or assignee did not resolve or the key was taken.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyline_tasks_completed_total",
			Help: "Tasks moved to completed.",
		}),
		ChecklistRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyline_task_checklist_rejections_total",
			Help: "Completion attempts rejected by an open checklist.",
		}),
		CascadedTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyline_tasks_cascade_removed_total",
			Help: "Pending tasks removed because their key or assignee was deleted.",
		}, []string{"cause"}),
		Keys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyline_keys",
			Help: "Keys by status.",
		}, []string{"status"}),
		PendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keyline_tasks_pending",
			Help: "Tasks in pending status.",
		}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyline_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	m.Registry.MustRegister(
		m.Checkouts, m.Returns, m.SilentReleases, m.AssignSkipped,
		m.TasksCompleted, m.ChecklistRejections, m.CascadedTasks,
		m.Keys, m.PendingTasks, m.WebhookDeliveries,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// KeyMoved counts a ledger-backed checkout or return.
func (m *Metrics) KeyMoved(action string) {
	if m == nil {
		return
	}
	switch action {
	case "checkout":
		m.Checkouts.Inc()
	case "return":
		m.Returns.Inc()
	}
}

func (m *Metrics) SilentRelease(n int) {
	if m != nil && n > 0 {
		m.SilentReleases.Add(float64(n))
	}
}

func (m *Metrics) AssignSkip() {
	if m != nil {
		m.AssignSkipped.Inc()
	}
}

func (m *Metrics) TaskCompleted() {
	if m != nil {
		m.TasksCompleted.Inc()
	}
}

func (m *Metrics) ChecklistRejected() {
	if m != nil {
		m.ChecklistRejections.Inc()
	}
}

func (m *Metrics) TasksCascaded(cause string, n int) {
	if m != nil && n > 0 {
		m.CascadedTasks.WithLabelValues(cause).Add(float64(n))
	}
}

func (m *Metrics) WebhookDelivery(outcome string) {
	if m != nil {
		m.WebhookDeliveries.WithLabelValues(outcome).Inc()
	}
}

// SetInventory publishes the current key and task gauges.
func (m *Metrics) SetInventory(available, assigned, pending int) {
	if m == nil {
		return
	}
	m.Keys.WithLabelValues("Available").Set(float64(available))
	m.Keys.WithLabelValues("Assigned").Set(float64(assigned))
	m.PendingTasks.Set(float64(pending))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Instrument records RPS, latency and in-flight requests. The path label is
// the chi route pattern when one matched.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
