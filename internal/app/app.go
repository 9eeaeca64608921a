// Package app wires a configured engine together with its collaborators.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"keyline/internal/archive"
	"keyline/internal/config"
	"keyline/internal/engine"
	"keyline/internal/obs"
)

// App is everything `kl serve` needs.
type App struct {
	Config  *config.Config
	Engine  *engine.Engine
	Logger  *slog.Logger
	Metrics *obs.Metrics
	Archive archive.Store
}

type Options struct {
	// LogOutput defaults to stderr.
	LogOutput io.Writer
	Now       func() time.Time
}

// Bootstrap validates cfg, opens the report archive and builds a seeded engine.
func Bootstrap(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := obs.NewLogger(out, cfg.Log.Level)
	store, err := archive.Open(ctx, cfg.Reports.Archive)
	if err != nil {
		return nil, fmt.Errorf("open report archive: %w", err)
	}
	metrics := obs.NewMetrics()
	eng := engine.New(engine.Options{
		Policy:        cfg.Policy,
		Logger:        logger,
		Metrics:       metrics,
		Archive:       store,
		ArchivePrefix: strings.TrimSuffix(cfg.Reports.Archive.Prefix, "/"),
		Now:           opts.Now,
	})
	eng.Seed(cfg.Seed)
	logger.InfoContext(ctx, "engine ready",
		slog.String("archive", string(store.Driver())),
		slog.String("orphan_tasks", cfg.Policy.OrphanTasks),
		slog.Int("accounts", len(cfg.Seed.Accounts)),
		slog.Int("keys", len(cfg.Seed.Keys)),
	)
	return &App{Config: cfg, Engine: eng, Logger: logger, Metrics: metrics, Archive: store}, nil
}
