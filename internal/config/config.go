// Package config provides configuration loading and management for arcft.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the root configuration.
type Config struct {
	DataDir   string          `json:"data_dir"  mapstructure:"data_dir"`
	Backend   BackendConfig   `json:"backend"   mapstructure:"backend"`
	Eval      EvalConfig      `json:"eval"      mapstructure:"eval"`
	Augment   AugmentConfig   `json:"augment"   mapstructure:"augment"`
	Rules     RulesConfig     `json:"rules"     mapstructure:"rules"`
	Retention RetentionPolicy `json:"retention" mapstructure:"retention"`
}

// BackendConfig selects and configures the reasoning backend.
type BackendConfig struct {
	Type        string        `json:"type"                   mapstructure:"type"`
	Model       string        `json:"model,omitempty"        mapstructure:"model"`
	Temperature *float64      `json:"temperature,omitempty"  mapstructure:"temperature"`
	SampleCount int           `json:"sample_count,omitempty" mapstructure:"sample_count"`
	Timeout     time.Duration `json:"timeout,omitempty"      mapstructure:"timeout"`
	BaseURL     string        `json:"base_url,omitempty"     mapstructure:"base_url"`
	APIKey      string        `json:"api_key,omitempty"      mapstructure:"api_key"`
	APIKeyEnv   string        `json:"api_key_env,omitempty"  mapstructure:"api_key_env"`
	Cmd         []string      `json:"cmd,omitempty"          mapstructure:"cmd"`
	UseTTY      *bool         `json:"use_tty,omitempty"      mapstructure:"use_tty"`
	RateLimit   RateLimit     `json:"rate_limit"             mapstructure:"rate_limit"`
	Retry       RetryPolicy   `json:"retry"                  mapstructure:"retry"`
}

// RateLimit bounds the rate of backend calls. Zero disables limiting.
type RateLimit struct {
	RequestsPerMinute float64 `json:"requests_per_minute,omitempty" mapstructure:"requests_per_minute"`
	Burst             int     `json:"burst,omitempty"               mapstructure:"burst"`
}

// RetryPolicy controls retries of timed out and rate limited calls.
// Retries are off unless MaxRetries is positive.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries,omitempty" mapstructure:"max_retries"`
	Backoff    time.Duration `json:"backoff,omitempty"     mapstructure:"backoff"`
}

// EvalConfig controls the evaluation loop.
type EvalConfig struct {
	Concurrency    int           `json:"concurrency,omitempty"  mapstructure:"concurrency"`
	Mode           string        `json:"mode,omitempty"         mapstructure:"mode"`
	CallTimeout    time.Duration `json:"call_timeout,omitempty" mapstructure:"call_timeout"`
	Deadline       time.Duration `json:"deadline,omitempty"     mapstructure:"deadline"`
	RequireAnswers bool          `json:"require_answers"        mapstructure:"require_answers"`
	Limit          int           `json:"limit,omitempty"        mapstructure:"limit"`
}

// AugmentConfig holds augmentation defaults.
type AugmentConfig struct {
	Variants      int    `json:"variants,omitempty" mapstructure:"variants"`
	Seed          uint64 `json:"seed"               mapstructure:"seed"`
	PermuteColors bool   `json:"permute_colors"     mapstructure:"permute_colors"`
}

// RulesConfig controls the learned rule store.
type RulesConfig struct {
	Enabled       bool    `json:"enabled"                  mapstructure:"enabled"`
	MinConfidence float64 `json:"min_confidence,omitempty" mapstructure:"min_confidence"`
	QueueSize     int     `json:"queue_size,omitempty"     mapstructure:"queue_size"`
}

// RetentionPolicy defines how many old runs to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		DataDir: ".arcft",
		Backend: BackendConfig{
			Type:        "openai",
			Model:       "gpt-4.1-mini",
			SampleCount: 1,
			Timeout:     2 * time.Minute,
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Eval: EvalConfig{
			Concurrency: 4,
			Mode:        "plain",
			CallTimeout: 2 * time.Minute,
		},
		Augment: AugmentConfig{Variants: 4},
		Rules:   RulesConfig{Enabled: true, QueueSize: 64},
	}
}

// DBPath returns the SQLite database location inside the data directory.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "arcft.db")
}

// RunsDir returns the directory holding per-run reports.
func (c Config) RunsDir() string {
	return filepath.Join(c.DataDir, "runs")
}

// Validate checks semantic constraints the schema cannot express.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.Backend.Type {
	case "openai", "gemini":
		if c.Backend.Model == "" {
			return fmt.Errorf("backend %s requires model", c.Backend.Type)
		}
	case "exec":
		if len(c.Backend.Cmd) == 0 {
			return fmt.Errorf("exec backend requires cmd")
		}
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	if c.Backend.SampleCount < 0 {
		return fmt.Errorf("backend.sample_count must not be negative")
	}
	if c.Eval.Concurrency < 0 {
		return fmt.Errorf("eval.concurrency must not be negative")
	}
	if c.Rules.MinConfidence < 0 || c.Rules.MinConfidence > 1 {
		return fmt.Errorf("rules.min_confidence must be within [0,1]")
	}
	return nil
}
