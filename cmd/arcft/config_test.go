package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/metalagman/arcft/internal/config"
	"github.com/spf13/viper"
)

func TestResolveConfigPath_FallsBackToJSON(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	want := filepath.Join(workDir, defaultConfigPath)
	if got := resolveConfigPath(workDir, ""); got != want {
		t.Fatalf("resolve config path = %q, want %q", got, want)
	}

	jsonPath := filepath.Join(workDir, ".arcft", "config.json")
	if err := writeTestFile(jsonPath, `{"data_dir": "data"}`); err != nil {
		t.Fatalf("write json config: %v", err)
	}
	if got := resolveConfigPath(workDir, defaultConfigPath); got != jsonPath {
		t.Fatalf("resolve config path = %q, want %q", got, jsonPath)
	}

	abs := filepath.Join(t.TempDir(), "custom.yml")
	if got := resolveConfigPath(workDir, abs); got != abs {
		t.Fatalf("resolve config path = %q, want %q", got, abs)
	}
}

func TestLoadConfig_UsesYAMLAndEnvironment(t *testing.T) {
	workDir := t.TempDir()
	if err := writeTestFile(filepath.Join(workDir, defaultConfigPath), `data_dir: state
backend:
  type: exec
  cmd: ["agent", "--json"]
  timeout: 45s
eval:
  concurrency: 8
  mode: meta
retention:
  keep_last: 10
  keep_days: 5
`); err != nil {
		t.Fatalf("write yaml config: %v", err)
	}

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("config", defaultConfigPath)
	t.Setenv("ARCFT_EVAL_CONCURRENCY", "2")
	t.Setenv("ARCFT_BACKEND_RETRY_BACKOFF", "250ms")

	cfg, err := loadConfig(workDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DataDir != filepath.Join(workDir, "state") {
		t.Fatalf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Backend.Type != "exec" || len(cfg.Backend.Cmd) != 2 {
		t.Fatalf("backend = %+v", cfg.Backend)
	}
	if cfg.Backend.Timeout != 45*time.Second {
		t.Fatalf("backend.timeout = %v, want 45s", cfg.Backend.Timeout)
	}
	if cfg.Backend.Retry.Backoff != 250*time.Millisecond {
		t.Fatalf("backend.retry.backoff = %v, want 250ms", cfg.Backend.Retry.Backoff)
	}
	if cfg.Eval.Concurrency != 2 {
		t.Fatalf("eval.concurrency = %d, want env override 2", cfg.Eval.Concurrency)
	}
	if cfg.Eval.Mode != "meta" {
		t.Fatalf("eval.mode = %q, want meta", cfg.Eval.Mode)
	}
	// Unset keys keep their defaults.
	if cfg.Eval.CallTimeout != config.Defaults().Eval.CallTimeout {
		t.Fatalf("eval.call_timeout = %v", cfg.Eval.CallTimeout)
	}
	if cfg.Retention.KeepLast != 10 || cfg.Retention.KeepDays != 5 {
		t.Fatalf("retention = %+v", cfg.Retention)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	workDir := t.TempDir()
	cfg, err := loadConfig(workDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Backend.Type != "openai" {
		t.Fatalf("backend.type = %q, want openai", cfg.Backend.Type)
	}
	if cfg.DataDir != filepath.Join(workDir, ".arcft") {
		t.Fatalf("data_dir = %q", cfg.DataDir)
	}
}

func TestLoadConfig_RejectsSchemaViolations(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "bad.json")
	if err := writeTestFile(path, `{"backend": {"type": "telepathy"}, "eval": {"concurrency": 0}}`); err != nil {
		t.Fatalf("write config: %v", err)
	}

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("config", path)

	_, err := loadConfig(workDir)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("load config error = %v, want ErrInvalidConfig", err)
	}
}

func writeTestFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
