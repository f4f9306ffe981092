// Package am holds the healthtwin configuration: database location, the
// biomarker table, validation tolerances and reasoning-context budgets.
package am

import (
	"time"

	"github.com/teranos/healthtwin/reasoning"
	"github.com/teranos/healthtwin/validation"
)

// Config represents the healthtwin configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" json:"database" yaml:"database" toml:"database"`
	Registry   RegistryConfig   `mapstructure:"registry" json:"registry" yaml:"registry" toml:"registry"`
	Validation ValidationConfig `mapstructure:"validation" json:"validation" yaml:"validation" toml:"validation"`
	Reasoning  ReasoningConfig  `mapstructure:"reasoning" json:"reasoning" yaml:"reasoning" toml:"reasoning"`
	Schema     SchemaConfig     `mapstructure:"schema" json:"schema" yaml:"schema" toml:"schema"`
	Log        LogConfig        `mapstructure:"log" json:"log" yaml:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite twin store
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path" toml:"path"`
}

// RegistryConfig points at an optional biomarker table that replaces or
// extends the built-in one.
type RegistryConfig struct {
	// JSON, YAML or TOML table (empty = built-in defaults only)
	Path    string `mapstructure:"path" json:"path" yaml:"path" toml:"path"`
	// Load the built-in table before Path (default: true)
	Builtin bool   `mapstructure:"builtin" json:"builtin" yaml:"builtin" toml:"builtin"`
}

// ValidationConfig tunes the biomarker validator
type ValidationConfig struct {
	// Widening of the reference range when no plausible range is set
	PlausibilityFactor     float64 `mapstructure:"plausibility_factor" json:"plausibility_factor" yaml:"plausibility_factor" toml:"plausibility_factor"`
	// Accepted clock skew for timestamps
	FutureToleranceSeconds int     `mapstructure:"future_tolerance_seconds" json:"future_tolerance_seconds" yaml:"future_tolerance_seconds" toml:"future_tolerance_seconds"`
}

// ReasoningConfig tunes reasoning-context generation
type ReasoningConfig struct {
	MaxTokens       int      `mapstructure:"max_tokens" json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	CharsPerToken   float64  `mapstructure:"chars_per_token" json:"chars_per_token" yaml:"chars_per_token" toml:"chars_per_token"`
	// Older points listed per field
	HistoryLimit    int      `mapstructure:"history_limit" json:"history_limit" yaml:"history_limit" toml:"history_limit"`
	// Domains rendered first, in order
	DomainOrder     []string `mapstructure:"domain_order" json:"domain_order" yaml:"domain_order" toml:"domain_order"`
	// Percent change below which a trend is stable
	StableThreshold float64  `mapstructure:"stable_threshold" json:"stable_threshold" yaml:"stable_threshold" toml:"stable_threshold"`
}

// SchemaConfig controls which fields new twins start with
type SchemaConfig struct {
	// Recognised domain names
	Domains         []string `mapstructure:"domains" json:"domains" yaml:"domains" toml:"domains"`
	// Declare every registered biomarker as a missing field
	IncludeRegistry bool     `mapstructure:"include_registry" json:"include_registry" yaml:"include_registry" toml:"include_registry"`
}

// LogConfig configures the CLI logger
type LogConfig struct {
	JSON  bool   `mapstructure:"json" json:"json" yaml:"json" toml:"json"`
	// debug, info, warn, error
	Level string `mapstructure:"level" json:"level" yaml:"level" toml:"level"`
}

// ValidatorConfig converts the section into validation.Config.
func (c ValidationConfig) ValidatorConfig() validation.Config {
	return validation.Config{
		PlausibilityFactor: c.PlausibilityFactor,
		FutureTolerance:    time.Duration(c.FutureToleranceSeconds) * time.Second,
	}
}

// GeneratorConfig converts the section into reasoning.Config. Unset values
// keep the reasoning defaults.
func (c ReasoningConfig) GeneratorConfig() reasoning.Config {
	cfg := reasoning.DefaultConfig()
	if c.MaxTokens > 0 {
		cfg.MaxTokens = c.MaxTokens
	}
	if c.CharsPerToken > 0 {
		cfg.CharsPerToken = c.CharsPerToken
	}
	if c.HistoryLimit >= 0 {
		cfg.HistoryLimit = c.HistoryLimit
	}
	if len(c.DomainOrder) > 0 {
		cfg.DomainOrder = c.DomainOrder
	}
	if c.StableThreshold > 0 {
		cfg.StableThreshold = c.StableThreshold
	}
	return cfg
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
