package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/metalagman/arcft/internal/config"
	"github.com/spf13/viper"
)

const defaultConfigPath = ".arcft/config.yaml"

// envKeys can be overridden with ARCFT_ variables, e.g. ARCFT_BACKEND_MODEL.
var envKeys = []string{
	"data_dir",
	"backend.type",
	"backend.model",
	"backend.temperature",
	"backend.sample_count",
	"backend.timeout",
	"backend.base_url",
	"backend.api_key",
	"backend.api_key_env",
	"backend.cmd",
	"backend.rate_limit.requests_per_minute",
	"backend.rate_limit.burst",
	"backend.retry.max_retries",
	"backend.retry.backoff",
	"eval.concurrency",
	"eval.mode",
	"eval.call_timeout",
	"eval.deadline",
	"eval.require_answers",
	"rules.enabled",
	"rules.min_confidence",
	"retention.keep_last",
	"retention.keep_days",
}

// resolveConfigPath returns the config file to read. The YAML default falls
// back to config.json next to it when only that exists.
func resolveConfigPath(workDir, path string) string {
	if path == "" {
		path = defaultConfigPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	if filepath.Base(path) == filepath.Base(defaultConfigPath) {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			alt := filepath.Join(filepath.Dir(path), "config.json")
			if _, err := os.Stat(alt); err == nil {
				return alt
			}
		}
	}
	return path
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// loadConfig reads the config file when present, validates it against the
// schema, applies ARCFT_ environment overrides and returns the merged result
// on top of config.Defaults.
func loadConfig(workDir string) (config.Config, error) {
	path := resolveConfigPath(workDir, viper.GetString("config"))

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := config.ValidateSettings(v.AllSettings()); err != nil {
			return config.Config{}, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("stat config: %w", err)
	}

	v.SetEnvPrefix("ARCFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return config.Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := config.Defaults()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return config.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(workDir, cfg.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
