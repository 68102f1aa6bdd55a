// ABOUTME: Configuration loading and parsing for fleetgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete fleetgate configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Scripts  ScriptsConfig  `yaml:"scripts"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds listener address configuration
type ServerConfig struct {
	// WSAddr is the listener for persistent agent websocket connections
	WSAddr string `yaml:"ws_addr"`
	// HTTPAddr is the listener for the administrative JSON API
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScriptsConfig holds the script file directory configuration
type ScriptsConfig struct {
	Dir string `yaml:"dir"`
}

// IngestConfig holds inbox ingestion tuning
type IngestConfig struct {
	Interval time.Duration `yaml:"-"`

	// ResetStaleRunning resets entries stuck in "running" (for example after
	// a crash mid-sweep) back to "pending" at startup. Entries older than
	// StaleAfter qualify. Off unless explicitly enabled.
	ResetStaleRunning bool          `yaml:"reset_stale_running"`
	StaleAfter        time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	IntervalRaw   string `yaml:"interval"`
	StaleAfterRaw string `yaml:"stale_after"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Defaults applied when the corresponding field is absent from the file.
const (
	DefaultWSAddr         = ":8765"
	DefaultHTTPAddr       = ":5001"
	DefaultScriptsDir     = "scriptfile"
	DefaultIngestInterval = 10 * time.Second
	DefaultStaleAfter     = time.Hour
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.WSAddr == "" {
		c.Server.WSAddr = DefaultWSAddr
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Scripts.Dir == "" {
		c.Scripts.Dir = DefaultScriptsDir
	}
	if c.Ingest.Interval == 0 {
		c.Ingest.Interval = DefaultIngestInterval
	}
	if c.Ingest.StaleAfter == 0 {
		c.Ingest.StaleAfter = DefaultStaleAfter
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Ingest.Interval < 0 {
		return fmt.Errorf("ingest.interval must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Ingest.IntervalRaw != "" {
		cfg.Ingest.Interval, err = time.ParseDuration(cfg.Ingest.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing ingest interval %q: %w", cfg.Ingest.IntervalRaw, err)
		}
	}

	if cfg.Ingest.StaleAfterRaw != "" {
		cfg.Ingest.StaleAfter, err = time.ParseDuration(cfg.Ingest.StaleAfterRaw)
		if err != nil {
			return fmt.Errorf("parsing ingest stale_after %q: %w", cfg.Ingest.StaleAfterRaw, err)
		}
	}

	return nil
}
