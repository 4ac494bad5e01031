package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "medboard.yml"

// Config models medboard.yml.
type Config struct {
	Server struct {
		Addr           string `yaml:"addr"`
		BasePath       string `yaml:"base_path"`
		AllowDevHeader bool   `yaml:"allow_dev_header"`
	} `yaml:"server"`
	Analysis struct {
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"analysis"`
	Board struct {
		DragActivationDistance float64  `yaml:"drag_activation_distance"`
		DefaultColumns         []string `yaml:"default_columns"`
	} `yaml:"board"`
	Cache struct {
		RedisURL string `yaml:"redis_url"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook is an outbound event subscription.
type Webhook struct {
	ID             string            `yaml:"id"`
	URL            string            `yaml:"url"`
	Events         []string          `yaml:"events"`
	Headers        map[string]string `yaml:"headers"`
	Secret         string            `yaml:"secret"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Enabled        *bool             `yaml:"enabled"`
}

func (w Webhook) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with medboard config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if strings.TrimSpace(c.Analysis.Model) == "" {
		return fmt.Errorf("config.analysis.model is required")
	}
	if c.Analysis.TimeoutSeconds < 0 {
		return fmt.Errorf("config.analysis.timeout_seconds must not be negative")
	}
	if c.Board.DragActivationDistance < 0 {
		return fmt.Errorf("config.board.drag_activation_distance must not be negative")
	}
	seen := map[string]bool{}
	for _, title := range c.Board.DefaultColumns {
		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("config.board.default_columns contains an empty title")
		}
		if seen[title] {
			return fmt.Errorf("config.board.default_columns has duplicate title %s", title)
		}
		seen[title] = true
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("config.cache.ttl: %w", err)
		}
	}
	if c.Cache.RedisURL != "" {
		if _, err := url.Parse(c.Cache.RedisURL); err != nil {
			return fmt.Errorf("config.cache.redis_url: %w", err)
		}
	}
	ids := map[string]bool{}
	for i, wh := range c.Webhooks {
		if wh.ID == "" {
			return fmt.Errorf("config.webhooks[%d].id is required", i)
		}
		if ids[wh.ID] {
			return fmt.Errorf("duplicate webhook id %s", wh.ID)
		}
		ids[wh.ID] = true
		u, err := url.Parse(wh.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %s has invalid url %q", wh.ID, wh.URL)
		}
	}
	return nil
}

// CacheTTL returns the parsed cache ttl, defaulting to five minutes.
func (c *Config) CacheTTL() time.Duration {
	if d, err := time.ParseDuration(c.Cache.TTL); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// AnalysisTimeout returns the per-call timeout for the analysis provider.
func (c *Config) AnalysisTimeout() time.Duration {
	if c.Analysis.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// sections keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Board.DefaultColumns = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Board.DefaultColumns == nil {
		cfg.Board.DefaultColumns = Default().Board.DefaultColumns
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  allow_dev_header: false

analysis:
  model: gemini-1.5-pro
  timeout_seconds: 120

board:
  drag_activation_distance: 10
  default_columns: [Todo, Doing, Done]

cache:
  redis_url: ""
  ttl: 5m

webhooks: []
`
