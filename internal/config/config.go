package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"keyline/internal/domain"
)

const (
	OrphanCancel = "cancel"
	OrphanForbid = "forbid"
)

// Config models keyline.yml.
type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Policy  Policy `yaml:"policy"`
	Reports struct {
		Archive ArchiveConfig `yaml:"archive"`
	} `yaml:"reports"`
	Webhooks struct {
		RatePerSecond float64         `yaml:"rate_per_second"`
		Burst         int             `yaml:"burst"`
		Hooks         []WebhookConfig `yaml:"hooks"`
	} `yaml:"webhooks"`
	Seed Seed `yaml:"seed"`
}

type Policy struct {
	ProtectedAccountID    string `yaml:"protected_account_id"`
	OrphanTasks           string `yaml:"orphan_tasks"`
	RecordImplicitReturns bool   `yaml:"record_implicit_returns"`
}

type ArchiveConfig struct {
	Driver    string `yaml:"driver"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Seed is loaded verbatim at startup; no cascades fire.
type Seed struct {
	Accounts []domain.UserAccount     `yaml:"accounts"`
	Keys     []domain.Key             `yaml:"keys"`
	Tasks    []domain.Task            `yaml:"tasks"`
	History  []domain.KeyHistoryEntry `yaml:"history"`
}

// TokenLifetime parses server.token_ttl, defaulting to 12h.
func (c *Config) TokenLifetime() time.Duration {
	d, err := time.ParseDuration(c.Server.TokenTTL)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.TokenTTL != "" {
		if _, err := time.ParseDuration(c.Server.TokenTTL); err != nil {
			return fmt.Errorf("config.server.token_ttl: %w", err)
		}
	}
	switch c.Policy.OrphanTasks {
	case OrphanCancel, OrphanForbid:
	default:
		return fmt.Errorf("config.policy.orphan_tasks must be %q or %q", OrphanCancel, OrphanForbid)
	}
	if c.Policy.ProtectedAccountID == "" {
		return fmt.Errorf("config.policy.protected_account_id is required")
	}
	switch c.Reports.Archive.Driver {
	case "", "memory":
	case "fs":
		if c.Reports.Archive.Dir == "" {
			return fmt.Errorf("config.reports.archive.dir is required for the fs driver")
		}
	case "s3":
		if c.Reports.Archive.Bucket == "" {
			return fmt.Errorf("config.reports.archive.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("config.reports.archive.driver %q unknown", c.Reports.Archive.Driver)
	}
	if c.Webhooks.RatePerSecond < 0 {
		return fmt.Errorf("config.webhooks.rate_per_second must not be negative")
	}
	for i, hook := range c.Webhooks.Hooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return c.Seed.validate(c.Policy.ProtectedAccountID)
}

func (s Seed) validate(protectedID string) error {
	accounts := map[string]domain.UserAccount{}
	usernames := map[string]bool{}
	for _, a := range s.Accounts {
		if a.ID == "" {
			return fmt.Errorf("seed account %q has empty id", a.Username)
		}
		if !a.Role.Valid() {
			return fmt.Errorf("seed account %s has invalid role %q", a.ID, a.Role)
		}
		if usernames[a.Username] {
			return fmt.Errorf("seed username %q duplicated", a.Username)
		}
		usernames[a.Username] = true
		accounts[a.ID] = a
	}
	if len(s.Accounts) > 0 {
		if a, ok := accounts[protectedID]; !ok || a.Role != domain.RoleSupervisor {
			return fmt.Errorf("seed must contain supervisor account %s", protectedID)
		}
	}
	keys := map[string]domain.Key{}
	for _, k := range s.Keys {
		if k.ID == "" {
			return fmt.Errorf("seed key %q has empty id", k.KeyNumber)
		}
		switch k.Status {
		case domain.KeyAvailable:
			if k.AssignedTo != "" {
				return fmt.Errorf("seed key %s is Available but has an assignee", k.ID)
			}
		case domain.KeyAssigned:
			if _, ok := accounts[k.AssignedTo]; !ok {
				return fmt.Errorf("seed key %s assigned to unknown account %q", k.ID, k.AssignedTo)
			}
		default:
			return fmt.Errorf("seed key %s has invalid status %q", k.ID, k.Status)
		}
		keys[k.ID] = k
	}
	for _, t := range s.Tasks {
		if _, ok := accounts[t.AssignedToID]; !ok {
			return fmt.Errorf("seed task %s assigned to unknown account %q", t.ID, t.AssignedToID)
		}
		if t.KeyID == "" {
			continue
		}
		k, ok := keys[t.KeyID]
		if !ok {
			return fmt.Errorf("seed task %s references unknown key %q", t.ID, t.KeyID)
		}
		if t.Status != domain.TaskCompleted && (k.Status != domain.KeyAssigned || k.AssignedTo != t.AssignedToID) {
			return fmt.Errorf("seed task %s is pending but key %s is not assigned to %s", t.ID, k.ID, t.AssignedToID)
		}
	}
	return nil
}

// Path returns the default config file path inside dir.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "keyline.yml")
}

// Load reads and validates config from path; an empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with kl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config, seeds included.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config over the defaults and validates it. Sections missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  jwt_secret: ""
  token_ttl: 12h

log:
  level: info

policy:
  protected_account_id: sv-default
  orphan_tasks: cancel
  record_implicit_returns: false

reports:
  archive:
    driver: memory
    prefix: reports/

webhooks:
  rate_per_second: 5
  burst: 1

seed:
  accounts:
    - id: sv-default
      username: supervisor
      password: "123456"
      name: Default Supervisor
      email: supervisor@example.com
      phone: 555-0100
      role: supervisor
    - id: staff-1
      username: john
      password: "123456"
      name: John Smith
      email: john@example.com
      phone: 555-0101
      role: staff
    - id: staff-2
      username: jane
      password: "123456"
      name: Jane Doe
      email: jane@example.com
      phone: 555-0102
      role: staff
  keys:
    - id: "1"
      key_number: KEY-001
      description: Main Office Door
      created_date: "2025-01-10"
      status: Available
    - id: "2"
      key_number: KEY-002
      description: Server Room
      created_date: "2025-01-12"
      status: Assigned
      assigned_to: staff-1
      assigned_to_name: John Smith
  tasks:
    - id: "1"
      task_name: Server Room Maintenance
      assigned_to: John Smith
      assigned_to_id: staff-1
      key_id: "2"
      key_number: KEY-002
      due_date: "2025-01-25"
      status: pending
      todo_items:
        - id: t1
          text: Check cooling system
          completed: false
        - id: t2
          text: Inspect cable management
          completed: false
        - id: t3
          text: Update server logs
          completed: false
  history:
    - id: h1
      key_id: "2"
      key_number: KEY-002
      action: checkout
      staff_id: staff-1
      staff_name: John Smith
      timestamp: "2025-01-15T10:30:00Z"
`
