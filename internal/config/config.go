package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Store     StoreConfig     `yaml:"store"`
	Profile   ProfileConfig   `yaml:"profile"`
	Edge      EdgeConfig      `yaml:"edge"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	UI        UIConfig        `yaml:"ui"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	// Output is where the stdout exporter writes: stdout, stderr or a file.
	Output string `yaml:"output"`
}

// StoreConfig locates the bookmark database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ProfileConfig locates the local profile file.
type ProfileConfig struct {
	Path string `yaml:"path"`
}

// EdgeConfig holds device connection settings.
type EdgeConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the per-device circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive transient failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// DiscoveryConfig holds local network discovery settings.
type DiscoveryConfig struct {
	MDNS        bool          `yaml:"mdns"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	Service     string        `yaml:"service"`
}

// UIConfig holds presenter settings.
type UIConfig struct {
	// Order is "completion" (fastest device first) or "bookmark".
	Order string `yaml:"order"`
}

// DefaultDir returns $HOME/.config/lazyedge, falling back to ./.lazyedge.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".lazyedge"
	}
	return filepath.Join(home, ".config", "lazyedge")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	dir := DefaultDir()
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: filepath.Join(dir, "lazyedge.log"),
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
			Output:   filepath.Join(dir, "traces.log"),
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "bookmarks.db"),
		},
		Profile: ProfileConfig{
			Path: filepath.Join(dir, "profile.yaml"),
		},
		Edge: EdgeConfig{
			ConnectTimeout: 10 * time.Second,
			Breaker: BreakerConfig{
				MaxFailures: 3,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Discovery: DiscoveryConfig{
			MDNS:        true,
			ScanTimeout: 3 * time.Second,
			Service:     "_lazyedge._tcp",
		},
		UI: UIConfig{
			Order: "completion",
		},
	}
}

// Load reads the YAML file at path on top of Defaults. A missing file is not
// an error. Environment overrides are applied last, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyEnvOverrides maps LAZYEDGE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LAZYEDGE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LAZYEDGE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("LAZYEDGE_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("LAZYEDGE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("LAZYEDGE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("LAZYEDGE_TRACER_OUTPUT"); v != "" {
		cfg.Tracer.Output = v
	}
	if v := os.Getenv("LAZYEDGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("LAZYEDGE_PROFILE_PATH"); v != "" {
		cfg.Profile.Path = v
	}
	if v := os.Getenv("LAZYEDGE_EDGE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Edge.ConnectTimeout = d
		}
	}
	if v := os.Getenv("LAZYEDGE_DISCOVERY_MDNS"); v != "" {
		cfg.Discovery.MDNS = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("LAZYEDGE_UI_ORDER"); v != "" {
		cfg.UI.Order = v
	}
}
