// Package config loads agent configuration from the environment and an
// optional YAML file. Environment variables use the BEACON_ prefix with
// double underscores separating nesting levels (BEACON_DASHBOARD__PORT).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment names recognized by the agent.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type Config struct {
	Environment string  `koanf:"environment"`
	SampleRate  float64 `koanf:"sample_rate"`

	// Endpoint is the remote collector base URL. When empty, delivery is
	// skipped entirely and the agent operates dashboard-only.
	Endpoint string `koanf:"api_endpoint"`

	// ErrorTrackingDSN is an opaque token for an external error-tracking
	// integration. The agent carries it through to the status snapshot but
	// does not interpret it.
	ErrorTrackingDSN string `koanf:"error_tracking_dsn"`

	EnableErrorTracking       bool `koanf:"enable_error_tracking"`
	EnablePerformanceTracking bool `koanf:"enable_performance_tracking"`
	EnableWebVitals           bool `koanf:"enable_web_vitals"`

	Storage   StorageConfig   `koanf:"storage"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Filter    FilterConfig    `koanf:"filter"`
}

type StorageConfig struct {
	// Path is the SQLite database file for durable session storage.
	// Empty means in-memory sessions only.
	Path string `koanf:"path"`
}

type DashboardConfig struct {
	Port int `koanf:"port"`
}

// FilterConfig extends the built-in ignore rules. Entries here are added to
// the defaults, not replacing them.
type FilterConfig struct {
	IgnorePatterns    []string `koanf:"ignore_patterns"`
	IgnoreMessages    []string `koanf:"ignore_messages"`
	IgnoreURLPatterns []string `koanf:"ignore_url_patterns"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from beacon.yaml (when present) and environment
// variables, with env vars taking precedence.
func Load() (*Config, error) {
	return LoadFile("beacon.yaml")
}

// LoadFile reads configuration from the given YAML file, then applies
// environment variable overrides on top. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("BEACON_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "BEACON_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secret-bearing fields
	cfg.Endpoint = substituteEnvVars(cfg.Endpoint)
	cfg.ErrorTrackingDSN = substituteEnvVars(cfg.ErrorTrackingDSN)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	if !k.Exists("environment") {
		k.Set("environment", EnvDevelopment)
	}
	if !k.Exists("sample_rate") {
		// Development captures everything; production samples down.
		if k.String("environment") == EnvProduction {
			k.Set("sample_rate", 0.1)
		} else {
			k.Set("sample_rate", 1.0)
		}
	}
	if !k.Exists("enable_error_tracking") {
		k.Set("enable_error_tracking", true)
	}
	if !k.Exists("enable_performance_tracking") {
		k.Set("enable_performance_tracking", true)
	}
	if !k.Exists("enable_web_vitals") {
		k.Set("enable_web_vitals", true)
	}
	if !k.Exists("dashboard.port") {
		k.Set("dashboard.port", 8317)
	}
}

// Validate checks value ranges. Sampling must be a probability and the
// environment must be one of the recognized names.
func (c *Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %v", c.SampleRate)
	}
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
