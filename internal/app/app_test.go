package app_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"keyline/internal/app"
	"keyline/internal/archive"
	"keyline/internal/config"
	"keyline/internal/domain"
)

func TestBootstrapSeedsEngine(t *testing.T) {
	var logs bytes.Buffer
	a, err := app.Bootstrap(context.Background(), nil, app.Options{LogOutput: &logs})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if a.Archive.Driver() != archive.DriverMemory {
		t.Fatalf("archive driver = %s", a.Archive.Driver())
	}
	if got := len(a.Engine.ListAccounts(context.Background(), domain.RoleStaff)); got != 2 {
		t.Fatalf("staff = %d", got)
	}
	if !strings.Contains(logs.String(), `"msg":"engine ready"`) {
		t.Fatalf("missing startup log: %s", logs.String())
	}
}

func TestBootstrapFilesystemArchive(t *testing.T) {
	cfg := config.Default()
	cfg.Reports.Archive.Driver = "fs"
	cfg.Reports.Archive.Dir = t.TempDir()
	a, err := app.Bootstrap(context.Background(), cfg, app.Options{LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	rep, err := a.Engine.GenerateReport(context.Background(), "weekly", "markdown")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, data, _, err := a.Engine.ReportPayload(context.Background(), rep.ID); err != nil || len(data) == 0 {
		t.Fatalf("payload: %v", err)
	}
}

func TestBootstrapRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Policy.OrphanTasks = "ignore"
	if _, err := app.Bootstrap(context.Background(), cfg, app.Options{LogOutput: &bytes.Buffer{}}); err == nil {
		t.Fatalf("expected validation error")
	}
}
