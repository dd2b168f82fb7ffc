// Package config resolves runner configuration from three sources, in
// increasing precedence: built-in defaults, an optional YAML file, and
// environment variables. A .env file in the working directory is loaded into
// the environment first, without overriding variables that are already set.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file consulted when no explicit path is given.
const DefaultFile = "axme.yaml"

// Config holds the fully resolved runner configuration.
type Config struct {
	Target  TargetConfig  `yaml:"target"`
	Run     RunConfig     `yaml:"run"`
	Journal JournalConfig `yaml:"journal"`
	Logging LoggingConfig `yaml:"logging"`
}

// TargetConfig describes the service under test.
type TargetConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	OwnerAgent string `yaml:"owner_agent"`
}

// RunConfig tunes how the suite is driven.
type RunConfig struct {
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// JournalConfig controls run persistence. An empty path disables the journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Run.TimeoutSeconds) * time.Second
}

// buildDefaultConfig returns the configuration used when no file and no
// environment variables are present.
func buildDefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			TimeoutSeconds: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load resolves the configuration. path names a YAML file and must exist when
// non-empty; with an empty path, DefaultFile is read if present and skipped
// otherwise.
func Load(path string) (*Config, error) {
	// Hoist .env into the environment; absent file is fine
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file; defaults plus environment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.expand()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expand applies ${VAR} placeholder expansion to every string field that may
// carry one, so files can reference secrets without embedding them.
func (c *Config) expand() {
	c.Target.BaseURL = expandString(c.Target.BaseURL)
	c.Target.APIKey = expandString(c.Target.APIKey)
	c.Target.OwnerAgent = expandString(c.Target.OwnerAgent)
	c.Journal.Path = expandString(c.Journal.Path)
}

// applyEnvOverrides overlays AXME_* environment variables onto cfg. Variables
// always win over file values.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("AXME_BASE_URL"); v != "" {
		cfg.Target.BaseURL = v
	}
	if v := os.Getenv("AXME_API_KEY"); v != "" {
		cfg.Target.APIKey = v
	}
	if v := os.Getenv("AXME_OWNER_AGENT"); v != "" {
		cfg.Target.OwnerAgent = v
	}
	if v := os.Getenv("AXME_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse AXME_TIMEOUT: %w", err)
		}
		cfg.Run.TimeoutSeconds = secs
	}
	if v := os.Getenv("AXME_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse AXME_RPS: %w", err)
		}
		cfg.Run.RequestsPerSecond = rps
	}
	if v := os.Getenv("AXME_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("AXME_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AXME_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.Run.TimeoutSeconds < 0 {
		return fmt.Errorf("run.timeout_seconds must not be negative, got %d", c.Run.TimeoutSeconds)
	}
	if c.Run.RequestsPerSecond < 0 {
		return fmt.Errorf("run.requests_per_second must not be negative, got %v", c.Run.RequestsPerSecond)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format must be auto, text, or json, got %q", c.Logging.Format)
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString substitutes ${VAR} and ${VAR:-default} placeholders from the
// environment. An unset or empty variable falls back to its default when one
// is declared; without a default the placeholder is left verbatim.
func expandString(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := placeholderPattern.FindStringSubmatch(m)
		if v := os.Getenv(groups[1]); v != "" {
			return v
		}
		if groups[2] != "" {
			return groups[3]
		}
		return m
	})
}
