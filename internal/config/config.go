package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models demopilot.yml.
type Config struct {
	Generation struct {
		BatchSize     int           `yaml:"batch_size" json:"batch_size"`
		BatchPause    time.Duration `yaml:"batch_pause" json:"batch_pause"`
		MaxUnlicensed int           `yaml:"max_unlicensed" json:"max_unlicensed"`
		Licensed      bool          `yaml:"licensed" json:"licensed"`
		ExclusiveRuns bool          `yaml:"exclusive_runs" json:"exclusive_runs"`
	} `yaml:"generation" json:"generation"`
	Progress struct {
		TTL time.Duration `yaml:"ttl" json:"ttl"`
	} `yaml:"progress" json:"progress"`
	Logging struct {
		Enabled     bool `yaml:"enabled" json:"enabled"`
		MaxEntries  int  `yaml:"max_entries" json:"max_entries"`
		DebugMirror bool `yaml:"debug_mirror" json:"debug_mirror"`
	} `yaml:"logging" json:"logging"`
	Cleanup struct {
		Strict bool `yaml:"strict" json:"strict"`
		Auto   bool `yaml:"auto" json:"auto"`
		Days   int  `yaml:"days" json:"days"`
	} `yaml:"cleanup" json:"cleanup"`
	Generators struct {
		Enabled []string `yaml:"enabled" json:"enabled"`
	} `yaml:"generators" json:"generators"`
	Host     HostConfig      `yaml:"host" json:"host"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

// WebhookConfig forwards journal entries to an HTTP endpoint. An empty Levels
// list forwards every level.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Levels         []string `yaml:"levels" json:"levels,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// HostConfig points at the application data store the generators write into.
type HostConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ddp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Generation.BatchSize < 1 {
		return fmt.Errorf("config.generation.batch_size must be at least 1")
	}
	if c.Generation.BatchPause < 0 {
		return fmt.Errorf("config.generation.batch_pause must not be negative")
	}
	if c.Generation.MaxUnlicensed < 1 {
		return fmt.Errorf("config.generation.max_unlicensed must be at least 1")
	}
	if c.Progress.TTL <= 0 {
		return fmt.Errorf("config.progress.ttl must be positive")
	}
	if c.Logging.MaxEntries < 1 {
		return fmt.Errorf("config.logging.max_entries must be at least 1")
	}
	if c.Cleanup.Auto && c.Cleanup.Days < 1 {
		return fmt.Errorf("config.cleanup.days must be at least 1 when cleanup.auto is on")
	}
	for _, slug := range c.Generators.Enabled {
		if slug == "" {
			return fmt.Errorf("config.generators.enabled contains an empty slug")
		}
	}
	switch c.Host.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("config.host.driver must be one of sqlite, mysql, postgres (got %q)", c.Host.Driver)
	}
	for i, hook := range c.Webhooks {
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// GeneratorEnabled reports whether slug passes the generators.enabled filter.
// An empty list enables everything.
func (c *Config) GeneratorEnabled(slug string) bool {
	if len(c.Generators.Enabled) == 0 {
		return true
	}
	for _, s := range c.Generators.Enabled {
		if s == slug {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "demopilot.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
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

const defaultTemplate = `generation:
  batch_size: 50
  batch_pause: 100ms
  # records per run allowed without a license
  max_unlicensed: 100
  licensed: false
  # reject overlapping runs for the same generator/kind pair
  exclusive_runs: false

progress:
  ttl: 5m

logging:
  enabled: true
  max_entries: 100
  debug_mirror: false

cleanup:
  # only untrack ids the generator confirms deleted
  strict: false
  auto: false
  days: 30

generators:
  # empty enables every known generator
  enabled: []

host:
  driver: sqlite
  # empty uses <workspace>/.demopilot/host.db
  dsn: ""

# journal entries are POSTed to each webhook while ddp serve runs
webhooks: []
#  - url: https://hooks.example.com/demopilot
#    levels: [error, success]
#    secret: change-me
#    timeout_seconds: 5
`
