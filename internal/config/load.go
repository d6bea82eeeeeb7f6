//
//
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RINGMON_"

// DefaultFile is read from the working directory when Load is given no path.
const DefaultFile = "ringmon.yaml"

// Load merges Baseline() + YAML file + RINGMON_* environment overrides and
// validates the result. An explicit path must exist; with an empty path
// DefaultFile is used only if present.
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Baseline()

	// Overlay the config file
	file, required := path, true
	if file == "" {
		file, required = DefaultFile, false
	}
	if err := loadFile(cfg, file, required); err != nil {
		return nil, err
	}

	// Environment wins over the file
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile decodes a YAML file over cfg. Keys absent from the file keep
// their current values.
func loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// applyEnv overlays RINGMON_* variables, e.g. RINGMON_BACKEND_URL.
func applyEnv(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}
