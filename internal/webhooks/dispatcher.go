// Package webhooks pushes audit events to configured HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"keyline/internal/config"
	"keyline/internal/domain"
	"keyline/internal/obs"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
)

// Source is the event log the dispatcher tails.
type Source interface {
	After(cursor int64, limit int, evtType string) []domain.Event
	LatestID() int64
}

type Options struct {
	Hooks         []config.WebhookConfig
	RatePerSecond float64
	Burst         int
	Interval      time.Duration
	Client        *http.Client
	Logger        *slog.Logger
	Metrics       *obs.Metrics
}

// Dispatcher delivers each matching event once per hook, in log order. A
// failed delivery stops that hook's batch and is retried on the next tick.
type Dispatcher struct {
	source   Source
	hooks    []config.WebhookConfig
	limiter  *rate.Limiter
	client   *http.Client
	logger   *slog.Logger
	metrics  *obs.Metrics
	interval time.Duration

	mu      sync.Mutex
	cursors map[int]int64
}

// New starts every hook at the current end of the log; earlier events are
// never delivered.
func New(src Source, opts Options) *Dispatcher {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	d := &Dispatcher{
		source:   src,
		hooks:    opts.Hooks,
		limiter:  rate.NewLimiter(limit, burst),
		client:   opts.Client,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		interval: opts.Interval,
		cursors:  make(map[int]int64),
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: defaultTimeout}
	}
	if d.logger == nil {
		d.logger = obs.Discard()
	}
	if d.interval <= 0 {
		d.interval = defaultInterval
	}
	start := src.LatestID()
	for i := range d.hooks {
		d.cursors[i] = start
	}
	return d
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	if len(d.hooks) == 0 {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for i, hook := range d.hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchHook(ctx, i, hook)
	}
}

func (d *Dispatcher) dispatchHook(ctx context.Context, idx int, hook config.WebhookConfig) {
	events := d.source.After(d.cursor(idx), defaultBatch, "")
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.metrics.WebhookDelivery("failed")
			d.logger.WarnContext(ctx, "webhook delivery failed",
				slog.String("url", hook.URL), slog.Int64("event_id", evt.ID), slog.Any("error", err))
			return
		}
		d.metrics.WebhookDelivery("delivered")
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursors[idx]
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	UID        string          `json:"uid"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// Sign returns the X-Keyline-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		UID:        evt.UID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	if hook.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(hook.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Keyline-Event", evt.Type)
	req.Header.Set("X-Keyline-Delivery", strconv.FormatInt(evt.ID, 10))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Keyline-Signature", Sign(hook.Secret, data))
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

// eventFilter matches exact types and "kind.*" wildcards; empty matches all.
type eventFilter struct {
	all      bool
	set      map[string]struct{}
	prefixes []string
}

func newEventFilter(events []string) eventFilter {
	f := eventFilter{set: make(map[string]struct{}, len(events))}
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		switch {
		case key == "":
		case key == "*":
			return eventFilter{all: true}
		case strings.HasSuffix(key, ".*"):
			f.prefixes = append(f.prefixes, strings.TrimSuffix(key, "*"))
		default:
			f.set[key] = struct{}{}
		}
	}
	if len(f.set) == 0 && len(f.prefixes) == 0 {
		return eventFilter{all: true}
	}
	return f
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[evt]; ok {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(evt, p) {
			return true
		}
	}
	return false
}
