package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"keyline/internal/config"
	"keyline/internal/domain"
)

func TestDefaultSeed(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Seed.Accounts) != 3 || len(cfg.Seed.Keys) != 2 || len(cfg.Seed.Tasks) != 1 || len(cfg.Seed.History) != 1 {
		t.Fatalf("unexpected seed sizes %+v", cfg.Seed)
	}
	if cfg.Seed.Accounts[0].ID != "sv-default" || cfg.Seed.Accounts[0].Role != domain.RoleSupervisor {
		t.Fatalf("unexpected first account %+v", cfg.Seed.Accounts[0])
	}
	k := cfg.Seed.Keys[1]
	if k.Status != domain.KeyAssigned || k.AssignedTo != "staff-1" || k.AssignedToName != "John Smith" {
		t.Fatalf("unexpected assigned key %+v", k)
	}
	if cfg.Seed.History[0].Action != domain.ActionCheckout {
		t.Fatalf("unexpected history %+v", cfg.Seed.History[0])
	}
	if cfg.TokenLifetime() != 12*time.Hour {
		t.Fatalf("unexpected token ttl %v", cfg.TokenLifetime())
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("policy:\n  protected_account_id: sv-default\n  orphan_tasks: forbid\n  record_implicit_returns: true\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Policy.OrphanTasks != config.OrphanForbid || !cfg.Policy.RecordImplicitReturns {
		t.Fatalf("policy not applied: %+v", cfg.Policy)
	}
	if cfg.Server.BasePath != "/v1" || len(cfg.Seed.Accounts) != 3 {
		t.Fatalf("defaults lost: %+v", cfg.Server)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"orphan policy":      "policy:\n  orphan_tasks: ignore\n",
		"archive driver":     "reports:\n  archive:\n    driver: ftp\n",
		"s3 bucket":          "reports:\n  archive:\n    driver: s3\n",
		"token ttl":          "server:\n  token_ttl: forever\n",
		"webhook url":        "webhooks:\n  hooks:\n    - url: \"\"\n",
		"protected missing":  "policy:\n  protected_account_id: root\n",
		"seed key assignee":  "seed:\n  keys:\n    - id: k\n      key_number: K\n      status: Assigned\n      assigned_to: ghost\n  tasks: []\n",
		"seed pending task":  "seed:\n  keys:\n    - id: \"2\"\n      key_number: K\n      status: Available\n",
		"invalid yaml":       "server: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil || cfg.Policy.ProtectedAccountID != "sv-default" {
		t.Fatalf("empty path must yield defaults: %v", err)
	}
	dir := t.TempDir()
	if _, err := config.Load(config.Path(dir)); err == nil || !strings.Contains(err.Error(), "kl config init") {
		t.Fatalf("expected not found hint, got %v", err)
	}
	path := filepath.Join(dir, "keyline.yml")
	if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("load generated default: %v", err)
	}
}
