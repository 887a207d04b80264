package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the dashboard service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ServeData exposes Data.Dir under /data when reading from a directory.
	ServeData bool `yaml:"serve_data"`
}

// DataConfig selects where /data/{code}.csv and /data/meta.json come from.
// A non-empty BaseURL wins over Dir.
type DataConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// BootstrapConfig resolves the country code mounted at startup.
type BootstrapConfig struct {
	Country     string `yaml:"country"`      // explicit code, skips the page scan
	Page        string `yaml:"page"`         // host HTML page holding the anchor element
	MarkerClass string `yaml:"marker_class"` // class of the anchor element
	Watch       bool   `yaml:"watch"`        // re-resolve when the page changes
}

type DashboardConfig struct {
	Profile          string `yaml:"profile"`
	DefaultIndicator string `yaml:"default_indicator"`
	LoadTimeout      string `yaml:"load_timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			ServeData: true,
		},
		Data: DataConfig{
			Dir:     "data",
			Timeout: "30s",
		},
		Bootstrap: BootstrapConfig{
			Page:        "index.html",
			MarkerClass: "sub-sdg",
		},
		Dashboard: DashboardConfig{
			Profile:          "explorer",
			DefaultIndicator: "Indicator 1",
			LoadTimeout:      "2m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults and applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			cfg.resolvePaths(filepath.Dir(path))
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// resolvePaths makes relative file paths relative to the config file.
func (c *Config) resolvePaths(base string) {
	if c.Data.Dir != "" && !filepath.IsAbs(c.Data.Dir) {
		c.Data.Dir = filepath.Join(base, c.Data.Dir)
	}
	if c.Bootstrap.Page != "" && !filepath.IsAbs(c.Bootstrap.Page) {
		c.Bootstrap.Page = filepath.Join(base, c.Bootstrap.Page)
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DASHBOARD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DASHBOARD_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("DASHBOARD_DATA_URL"); v != "" {
		c.Data.BaseURL = v
	}
	if v := os.Getenv("DASHBOARD_COUNTRY"); v != "" {
		c.Bootstrap.Country = v
	}
	if v := os.Getenv("DASHBOARD_PAGE"); v != "" {
		c.Bootstrap.Page = v
	}
	if v := os.Getenv("DASHBOARD_PROFILE"); v != "" {
		c.Dashboard.Profile = v
	}
	if v := os.Getenv("DASHBOARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks values that cannot be fixed by defaults.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Data.Dir == "" && c.Data.BaseURL == "" {
		return errors.New("one of data.dir or data.base_url is required")
	}
	if _, err := c.DataTimeout(); err != nil {
		return err
	}
	if _, err := c.LoadTimeout(); err != nil {
		return err
	}
	if c.Bootstrap.Country == "" && c.Bootstrap.Page != "" && c.Bootstrap.MarkerClass == "" {
		return errors.New("bootstrap.marker_class is required to scan a page")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) DataTimeout() (time.Duration, error) {
	return parseDuration("data.timeout", c.Data.Timeout)
}

func (c *Config) LoadTimeout() (time.Duration, error) {
	return parseDuration("dashboard.load_timeout", c.Dashboard.LoadTimeout)
}

func parseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", key)
	}
	return d, nil
}
