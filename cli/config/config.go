package config

import (
	"fmt"
	"time"
)

// DefaultServiceURL is the analysis service base URL used when neither the
// config file nor a flag provides one.
const DefaultServiceURL = "http://localhost:8000"

// Config represents a screener.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	History  HistoryConfig  `yaml:"history"`
	Progress ProgressConfig `yaml:"progress"`
	Adapter  AdapterConfig  `yaml:"adapter"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
}

// ServiceConfig locates the analysis service.
type ServiceConfig struct {
	URL     string            `yaml:"url"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// HistoryConfig selects the history persistence backend.
type HistoryConfig struct {
	// Backend is one of file, sqlite, redis, memory.
	Backend string `yaml:"backend"`
	// Path is the directory (file) or database file (sqlite).
	Path string `yaml:"path"`
	// URL is the Redis connection URL (redis).
	URL    string `yaml:"url,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
	// Key overrides the storage key.
	Key string `yaml:"key,omitempty"`
	// Codec is json (default) or msgpack.
	Codec string `yaml:"codec,omitempty"`
}

// ProgressConfig tunes the simulated stage cadence.
type ProgressConfig struct {
	StepInterval Duration `yaml:"step_interval,omitempty"`
	SettleDelay  Duration `yaml:"settle_delay,omitempty"`
}

// AdapterConfig holds query_completed notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	Backoff Duration          `yaml:"backoff,omitempty"`
}

// ArchiveConfig holds history export defaults.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// File receives log output instead of stderr.
	File string `yaml:"file,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "800ms", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// ServiceURL returns the configured service URL or DefaultServiceURL.
func (c *Config) ServiceURL() string {
	if c == nil || c.Service.URL == "" {
		return DefaultServiceURL
	}
	return c.Service.URL
}
