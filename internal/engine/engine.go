package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"keyline/internal/archive"
	"keyline/internal/config"
	"keyline/internal/domain"
	"keyline/internal/engine/auth"
	"keyline/internal/events"
	"keyline/internal/identity"
	"keyline/internal/inventory"
	"keyline/internal/ledger"
	"keyline/internal/obs"
)

// Engine owns tasks and orchestrates every cascade between accounts, keys and
// the checkout ledger. All exported methods serialize on one mutex, so a
// cascade is never observed half-applied.
type Engine struct {
	mu sync.Mutex

	Identity  *identity.Store
	Inventory *inventory.Inventory
	Ledger    *ledger.Ledger
	Events    *events.Log
	Archive   archive.Store
	Metrics   *obs.Metrics
	Logger    *slog.Logger
	Policy    config.Policy
	Now       func() time.Time

	archivePrefix string
	tap           *ledgerTap
	tasks         []domain.Task
	reports       []domain.GeneratedReport
	session       *domain.UserAccount
}

type Options struct {
	Policy        config.Policy
	Logger        *slog.Logger
	Metrics       *obs.Metrics
	Archive       archive.Store
	ArchivePrefix string
	Now           func() time.Time
}

func New(opts Options) *Engine {
	e := &Engine{
		Policy:        opts.Policy,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		Archive:       opts.Archive,
		Now:           opts.Now,
		archivePrefix: opts.ArchivePrefix,
	}
	if e.Logger == nil {
		e.Logger = obs.Discard()
	}
	if e.Archive == nil {
		e.Archive = archive.NewMemory()
	}
	if e.Policy.OrphanTasks == "" {
		e.Policy.OrphanTasks = config.OrphanCancel
	}
	clock := func() time.Time { return e.now() }
	e.Identity = identity.New(e.Policy.ProtectedAccountID)
	e.Ledger = ledger.New(clock)
	e.tap = &ledgerTap{ledger: e.Ledger}
	e.Inventory = inventory.New(e.Identity, e.tap, clock)
	e.Events = events.NewLog(e.Logger, clock)
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Seed loads records verbatim without firing cascades.
func (e *Engine) Seed(s config.Seed) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Identity.Restore(s.Accounts)
	e.Inventory.Restore(s.Keys)
	e.Ledger.Restore(s.History)
	for _, t := range s.Tasks {
		e.tasks = append(e.tasks, t.Clone())
	}
	e.refreshGauges()
}

// Snapshot returns copies of the four collections. Passwords are stripped.
func (e *Engine) Snapshot(ctx context.Context) domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := domain.Snapshot{
		TakenAt: e.timestamp(),
		Keys:    e.Inventory.List(),
		History: e.Ledger.List(ledger.Filter{}),
	}
	for _, a := range e.Identity.List() {
		snap.Accounts = append(snap.Accounts, a.Public())
	}
	snap.Tasks = e.cloneTasks(func(domain.Task) bool { return true })
	return snap
}

// ledgerTap forwards entries to the ledger and remembers them until the
// current operation settles.
type ledgerTap struct {
	ledger  *ledger.Ledger
	pending []domain.KeyHistoryEntry
}

func (t *ledgerTap) Record(entry domain.KeyHistoryEntry) domain.KeyHistoryEntry {
	rec := t.ledger.Record(entry)
	t.pending = append(t.pending, rec)
	return rec
}

func (t *ledgerTap) drain() []domain.KeyHistoryEntry {
	out := t.pending
	t.pending = nil
	return out
}

// settle publishes ledger movements made by the current operation as audit
// events and metrics. Callers hold e.mu.
func (e *Engine) settle(ctx context.Context) {
	for _, entry := range e.tap.drain() {
		e.Metrics.KeyMoved(string(entry.Action))
		e.emit(ctx, "key."+string(entry.Action), "key", entry.KeyID, events.EventPayload{
			"key_number": entry.KeyNumber,
			"staff_id":   entry.StaffID,
			"staff_name": entry.StaffName,
			"history_id": entry.ID,
		})
	}
	e.refreshGauges()
}

func (e *Engine) emit(ctx context.Context, evtType, entityKind, entityID string, payload events.EventPayload) {
	if err := e.Events.Append(ctx, evtType, entityKind, entityID, auth.ActorFromContext(ctx), payload); err != nil {
		e.Logger.WarnContext(ctx, "event append failed", slog.String("type", evtType), slog.Any("error", err))
	}
}

func (e *Engine) refreshGauges() {
	available := len(e.Inventory.Available())
	pending := 0
	for _, t := range e.tasks {
		if t.Status == domain.TaskPending {
			pending++
		}
	}
	e.Metrics.SetInventory(available, len(e.Inventory.List())-available, pending)
}
