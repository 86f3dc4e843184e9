package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/metalagman/arcft/internal/config"
)

// New builds the backend described by cfg, wrapped with rate limiting and
// retries when configured.
func New(ctx context.Context, cfg config.BackendConfig, workDir string, stderr io.Writer) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Type {
	case "openai":
		b, err = NewOpenAI(OpenAIConfig{
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			APIKeyEnv: cfg.APIKeyEnv,
			Timeout:   cfg.Timeout,
		}, nil)
	case "gemini":
		b, err = NewGemini(ctx, GeminiConfig{
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			APIKeyEnv: cfg.APIKeyEnv,
			Timeout:   cfg.Timeout,
		}, nil)
	case "exec":
		useTTY := false
		if cfg.UseTTY != nil {
			useTTY = *cfg.UseTTY
		}
		b, err = NewExec(ExecConfig{
			Cmd:     cfg.Cmd,
			UseTTY:  useTTY,
			WorkDir: workDir,
			Timeout: cfg.Timeout,
			Stderr:  stderr,
		})
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Retry.MaxRetries > 0 {
		b = NewRetrying(b, cfg.Retry.MaxRetries, cfg.Retry.Backoff)
	}
	if cfg.RateLimit.RequestsPerMinute > 0 {
		b = NewRateLimited(b, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}
	return b, nil
}

// OptionsFrom returns per-call options from cfg.
func OptionsFrom(cfg config.BackendConfig) Options {
	return Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		SampleCount: cfg.SampleCount,
	}
}
