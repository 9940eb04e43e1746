// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Jeffrey0117/meei/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the runtime configuration loaded from meei.toml.
type Config struct {
	// Home is the base directory. It is resolved before the file is read and
	// never stored in it.
	Home string `toml:"-" json:"home"`

	DefaultProvider string `toml:"default_provider" json:"default_provider"`
	TimeoutSeconds  int    `toml:"timeout_seconds" json:"timeout_seconds"`
	PromptMaxChars  int    `toml:"prompt_max_chars" json:"prompt_max_chars"`
	LogLevel        string `toml:"log_level" json:"log_level"`
	LogFormat       string `toml:"log_format" json:"log_format"`
	DBPath          string `toml:"db_path" json:"db_path"`
}

const (
	// ConfigFileName is the runtime configuration file inside the home directory.
	ConfigFileName = "meei.toml"

	// DBFileName is the default usage ledger file.
	DBFileName = "meei.db"

	DefaultProvider       = "deepseek"
	DefaultTimeoutSeconds = 120
	DefaultPromptMaxChars = 500
)

// Default returns the built-in configuration for home.
func Default(home string) *Config {
	return &Config{
		Home:            home,
		DefaultProvider: DefaultProvider,
		TimeoutSeconds:  DefaultTimeoutSeconds,
		PromptMaxChars:  DefaultPromptMaxChars,
		LogLevel:        "warn",
		LogFormat:       "text",
		DBPath:          filepath.Join(home, DBFileName),
	}
}

// Timeout returns the per-request transport timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Path returns the location of meei.toml.
func (c *Config) Path() string {
	return filepath.Join(c.Home, ConfigFileName)
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// HomeDir returns MEEI_HOME when set, otherwise ~/.meei.
func HomeDir() (string, error) {
	if dir := os.Getenv("MEEI_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".meei"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads <home>/meei.toml, applies MEEI_* overrides and validates the
// result. An empty home resolves through HomeDir. A missing file is not an
// error.
func Load(home string) (*Config, error) {
	if home == "" {
		var err error
		if home, err = HomeDir(); err != nil {
			return nil, err
		}
	}

	cfg := Default(home)
	if _, err := os.Stat(cfg.Path()); err == nil {
		if err := LoadTOML(cfg, cfg.Path()); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg. Fields absent from the file keep their
// current values.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// Save writes the configuration to meei.toml atomically.
func (c *Config) Save() error {
	var buf bytes.Buffer
	buf.WriteString("# meei runtime configuration\n")
	buf.WriteString("# API keys belong in the encrypted store: meei config set <provider>.api_key <key>\n\n")

	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFileWithDir(c.Path(), buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported variables:
//   - MEEI_DEFAULT_PROVIDER: overrides default_provider
//   - MEEI_TIMEOUT: overrides timeout_seconds
//   - MEEI_LOG_LEVEL: overrides log_level
//   - MEEI_LOG_FORMAT: overrides log_format
//   - MEEI_DB_PATH: overrides db_path
func (c *Config) ApplyEnvOverrides() {
	if provider := os.Getenv("MEEI_DEFAULT_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}

	if timeout := os.Getenv("MEEI_TIMEOUT"); timeout != "" {
		// Invalid values are caught by Validate
		if secs, err := strconv.Atoi(timeout); err == nil {
			c.TimeoutSeconds = secs
		} else {
			c.TimeoutSeconds = -1
		}
	}

	if level := os.Getenv("MEEI_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if format := os.Getenv("MEEI_LOG_FORMAT"); format != "" {
		c.LogFormat = format
	}

	if path := os.Getenv("MEEI_DB_PATH"); path != "" {
		c.DBPath = path
	}
}

// SetDefaults fills zero values left by a partial file.
func (c *Config) SetDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = DefaultProvider
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.PromptMaxChars == 0 {
		c.PromptMaxChars = DefaultPromptMaxChars
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.Home, DBFileName)
	}
	c.DefaultProvider = strings.ToLower(strings.TrimSpace(c.DefaultProvider))
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.TimeoutSeconds <= 0 || c.TimeoutSeconds > 3600 {
		errs = append(errs, ValidationError{
			Field:   "timeout_seconds",
			Message: fmt.Sprintf("must be between 1 and 3600, got %d", c.TimeoutSeconds),
		})
	}

	if c.PromptMaxChars < 0 {
		errs = append(errs, ValidationError{
			Field:   "prompt_max_chars",
			Message: "must not be negative",
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.LogLevel),
		})
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("invalid format '%s', must be text or json", c.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
