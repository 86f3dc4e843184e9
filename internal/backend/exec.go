package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/metalagman/ainvoke"
	"github.com/metalagman/arcft/internal/prompt"
)

// ExecConfig configures a local agent CLI.
type ExecConfig struct {
	Cmd     []string
	UseTTY  bool
	WorkDir string
	Timeout time.Duration
	// Stderr receives the agent's stderr; nil discards it.
	Stderr io.Writer
}

// Exec runs a local agent command through ainvoke and reads its answers from
// the JSON output document.
type Exec struct {
	cfg    ExecConfig
	runner ainvoke.Runner
}

type execInput struct {
	TaskID      string   `json:"task_id"`
	TestIndex   int      `json:"test_index"`
	Mode        string   `json:"mode"`
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	SampleCount int      `json:"sample_count"`
}

type execOutput struct {
	Answers []string `json:"answers"`
}

const execInputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "task_id": { "type": "string" },
    "test_index": { "type": "integer", "minimum": 0 },
    "mode": { "type": "string" },
    "prompt": { "type": "string" },
    "model": { "type": "string" },
    "temperature": { "type": "number" },
    "sample_count": { "type": "integer", "minimum": 1 }
  },
  "required": ["task_id", "test_index", "prompt", "sample_count"]
}`

const execOutputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "answers": { "type": "array", "items": { "type": "string" }, "minItems": 1 }
  },
  "required": ["answers"]
}`

// NewExec constructs an exec backend.
func NewExec(cfg ExecConfig) (*Exec, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("exec backend requires cmd")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	runner, err := ainvoke.NewRunner(ainvoke.AgentConfig{
		Cmd:    cfg.Cmd,
		UseTTY: cfg.UseTTY,
	})
	if err != nil {
		return nil, fmt.Errorf("create agent runner: %w", err)
	}
	return &Exec{cfg: cfg, runner: runner}, nil
}

// Invoke runs the agent once in a fresh directory and returns its answers.
func (e *Exec) Invoke(ctx context.Context, req prompt.Request, opts Options) ([]string, error) {
	if e.cfg.WorkDir != "" {
		if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create exec work dir: %w", err)
		}
	}
	runDir, err := os.MkdirTemp(e.cfg.WorkDir, "arcft-exec-*")
	if err != nil {
		return nil, fmt.Errorf("create exec run dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(runDir) }()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	inv := ainvoke.Invocation{
		RunDir:       runDir,
		SystemPrompt: req.System,
		Input: execInput{
			TaskID:      req.TaskID,
			TestIndex:   req.TestIndex,
			Mode:        string(req.Mode),
			Prompt:      req.User,
			Model:       opts.Model,
			Temperature: opts.Temperature,
			SampleCount: opts.samples(),
		},
		InputSchema:  execInputSchema,
		OutputSchema: execOutputSchema,
	}

	stderr := e.cfg.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	out, _, exitCode, err := e.runner.Run(ctx, inv, ainvoke.WithStdout(io.Discard), ainvoke.WithStderr(stderr))
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%w)", err, ctx.Err())
		}
		return nil, classify(fmt.Sprintf("run agent (exit code %d)", exitCode), err, 0)
	}

	var resp execOutput
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, classify("decode agent output", err, 0)
	}
	answers := make([]string, 0, len(resp.Answers))
	for _, a := range resp.Answers {
		if a = strings.TrimSpace(a); a != "" {
			answers = append(answers, a)
		}
	}
	if len(answers) == 0 {
		return nil, classify("agent output", fmt.Errorf("no answers"), 0)
	}
	return answers, nil
}
