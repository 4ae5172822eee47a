package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "screener.yaml"

// Load reads a YAML config file, expands environment variables, and
// unmarshals into a Config struct. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadOptional loads path when it exists. A missing file yields an empty
// Config unless required is set.
func LoadOptional(path string, required bool) (*Config, error) {
	if _, err := os.Stat(path); err != nil && os.IsNotExist(err) && !required {
		return &Config{}, nil
	}
	return Load(path)
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment without overriding variables that are already set.
// Missing files are ignored; with no arguments ".env" is tried.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("cannot read env file %q: %w", f, err)
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("invalid env file %q: %w", f, err)
		}
	}
	return nil
}
