package engine

import (
	"context"
	"fmt"
	"path"
	"strings"

	"keyline/internal/domain"
	"keyline/internal/engine/auth"
	"keyline/internal/events"
	"keyline/internal/ids"
	"keyline/internal/ledger"
	"keyline/internal/report"
)

// recentHistory caps the ledger section of a generated report.
const recentHistory = 50

func (e *Engine) stats() domain.Stats {
	s := domain.Stats{
		TotalStaff: len(e.Identity.ListByRole(domain.RoleStaff)),
		TotalTasks: len(e.tasks),
	}
	for _, k := range e.Inventory.List() {
		s.TotalKeys++
		if k.Status == domain.KeyAvailable {
			s.AvailableKeys++
		} else {
			s.AssignedKeys++
		}
	}
	for _, t := range e.tasks {
		if t.Status == domain.TaskCompleted {
			s.CompletedTasks++
		} else {
			s.PendingTasks++
		}
	}
	return s
}

// Stats returns the dashboard counters.
func (e *Engine) Stats(ctx context.Context) domain.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats()
}

func (e *Engine) reportKey(id string) string {
	return path.Join(e.archivePrefix, id)
}

// GenerateReport renders the current state and stores the payload in the
// archive. Rendering and upload run outside the engine lock.
func (e *Engine) GenerateReport(ctx context.Context, name, format string) (domain.GeneratedReport, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.GeneratedReport{}, &domain.ValidationError{Field: "name"}
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return domain.GeneratedReport{}, err
	}

	e.mu.Lock()
	generatedAt := e.timestamp()
	history := ledger.SortDesc(e.Ledger.List(ledger.Filter{}))
	if len(history) > recentHistory {
		history = history[:recentHistory]
	}
	data := report.Data{
		Name:        name,
		GeneratedAt: generatedAt,
		Stats:       e.stats(),
		Staff:       e.Identity.ListByRole(domain.RoleStaff),
		Keys:        e.Inventory.List(),
		Tasks:       e.cloneTasks(func(domain.Task) bool { return true }),
		History:     history,
	}
	e.mu.Unlock()

	payload, err := report.Render(data, f)
	if err != nil {
		return domain.GeneratedReport{}, fmt.Errorf("render report: %w", err)
	}
	rep := domain.GeneratedReport{
		ID:          ids.New(),
		Name:        name,
		Format:      string(f),
		GeneratedAt: generatedAt,
		Size:        len(payload),
		GeneratedBy: auth.ActorFromContext(ctx),
	}
	if err := e.Archive.Put(ctx, e.reportKey(rep.ID), payload, f.ContentType()); err != nil {
		return domain.GeneratedReport{}, fmt.Errorf("archive report: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, rep)
	e.emit(ctx, "report.generated", "report", rep.ID, events.EventPayload{
		"name":   rep.Name,
		"format": rep.Format,
		"size":   rep.Size,
	})
	return rep, nil
}

// ListReports returns generated reports newest first.
func (e *Engine) ListReports(ctx context.Context) []domain.GeneratedReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.GeneratedReport, 0, len(e.reports))
	for i := len(e.reports) - 1; i >= 0; i-- {
		out = append(out, e.reports[i])
	}
	return out
}

// ReportPayload fetches a rendered report and its content type.
func (e *Engine) ReportPayload(ctx context.Context, id string) (domain.GeneratedReport, []byte, string, error) {
	e.mu.Lock()
	var rep domain.GeneratedReport
	found := false
	for _, r := range e.reports {
		if r.ID == id {
			rep, found = r, true
			break
		}
	}
	e.mu.Unlock()
	if !found {
		return domain.GeneratedReport{}, nil, "", domain.NotFound("report", id)
	}
	data, contentType, err := e.Archive.Get(ctx, e.reportKey(id))
	if err != nil {
		return domain.GeneratedReport{}, nil, "", fmt.Errorf("fetch report %s: %w", id, err)
	}
	return rep, data, contentType, nil
}
