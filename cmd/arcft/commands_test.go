package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metalagman/arcft/internal/rules"
	"github.com/spf13/viper"
)

const testChallenges = `{
  "a": {"train": [{"input": [[1,0],[0,0]], "output": [[0,1],[0,0]]}], "test": [{"input": [[1,1]]}]},
  "b": {"train": [{"input": [[2,0],[0,0]], "output": [[0,2],[0,0]]}], "test": [{"input": [[2]]}]}
}`

const testSolutions = `{"a": [[[1,1]]], "b": [[[2]]]}`

// setupWorkspace creates a working directory with a dataset and an exec
// backend that always answers [[1,1]] with a reported rule.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	agent := filepath.Join(dir, "agent.sh")
	script := "#!/bin/sh\ncat > /dev/null\n" +
		`RESP='{"answers":["RULE: Copy the input.\n[[1,1]]"]}'` + "\n" +
		`printf '%s\n' "$RESP" > output.json` + "\n" +
		`printf '%s\n' "$RESP"` + "\n"
	files := map[string]string{
		"challenges.json": testChallenges,
		"solutions.json":  testSolutions,
		defaultConfigPath: "backend:\n  type: exec\n  cmd: [\"" + agent + "\"]\neval:\n  concurrency: 2\n",
	}
	for name, content := range files {
		if err := writeTestFile(filepath.Join(dir, name), content); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.WriteFile(agent, []byte(script), 0o755); err != nil {
		t.Fatalf("write agent: %v", err)
	}
	t.Chdir(dir)
	viper.Reset()
	t.Cleanup(viper.Reset)
	return dir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeErr(t, args...)
	if err != nil {
		t.Fatalf("arcft %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func executeErr(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEvaluate_RecordsRunReportAndRules(t *testing.T) {
	dir := setupWorkspace(t)

	out := execute(t, "evaluate", "--challenges", "challenges.json", "--solutions", "solutions.json",
		"--report", "out/report.yaml")
	if !strings.Contains(out, "correct 1/2") {
		t.Fatalf("summary = %q, want correct 1/2", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "report.yaml")); err != nil {
		t.Fatalf("report not written: %v", err)
	}
	reports, err := filepath.Glob(filepath.Join(dir, ".arcft", "runs", "*", "report.yaml"))
	if err != nil || len(reports) != 1 {
		t.Fatalf("run reports = %v (err %v), want one", reports, err)
	}

	listed := execute(t, "runs", "list")
	if !strings.Contains(listed, "completed") || !strings.Contains(listed, "exec") {
		t.Fatalf("runs list = %q", listed)
	}

	rulesOut := execute(t, "rules", "list")
	if !strings.Contains(rulesOut, "Copy the input") || !strings.Contains(rulesOut, "0.500") {
		t.Fatalf("rules list = %q", rulesOut)
	}

	exported := execute(t, "rules", "export")
	var doc map[string]map[string]any
	if err := json.Unmarshal([]byte(exported), &doc); err != nil {
		t.Fatalf("decode export: %v\n%s", err, exported)
	}
	if len(doc) != 1 {
		t.Fatalf("exported %d rules, want 1", len(doc))
	}
	for _, r := range doc {
		if r["attempt_count"] != 2.0 || r["success_count"] != 1.0 {
			t.Fatalf("exported rule counts = %v/%v", r["success_count"], r["attempt_count"])
		}
	}

	for id := range doc {
		shown := execute(t, "rules", "get", id)
		if !strings.Contains(shown, "rule_id: "+id) || !strings.Contains(shown, "attempt_count: 2") {
			t.Fatalf("rules get = %q", shown)
		}
	}
	if _, err := executeErr(t, "rules", "get", "missing"); !errors.Is(err, rules.ErrNotFound) {
		t.Fatalf("rules get missing: err = %v, want ErrNotFound", err)
	}

	pruned := execute(t, "runs", "prune", "--keep-last", "1")
	if !strings.Contains(pruned, "deleted 0 runs") {
		t.Fatalf("runs prune = %q", pruned)
	}
}

func TestAugmentAndPrepare_WriteOutputs(t *testing.T) {
	dir := setupWorkspace(t)

	out := execute(t, "augment", "--challenges", "challenges.json", "--solutions", "solutions.json",
		"--out", "aug/challenges.json", "--out-solutions", "aug/solutions.json", "--variants", "3", "--seed", "7",
		"--jsonl", "aug/train.jsonl")
	if !strings.Contains(out, "wrote 6 tasks from 2 sources") {
		t.Fatalf("augment output = %q", out)
	}
	data, err := os.ReadFile(filepath.Join(dir, "aug", "challenges.json"))
	if err != nil {
		t.Fatalf("read augmented challenges: %v", err)
	}
	var challenges map[string]any
	if err := json.Unmarshal(data, &challenges); err != nil {
		t.Fatalf("decode augmented challenges: %v", err)
	}
	for id := range challenges {
		if !strings.Contains(id, "|aug:") || !strings.HasSuffix(id, "|seed:7") {
			t.Fatalf("unexpected variant id %q", id)
		}
	}

	again := execute(t, "augment", "--challenges", "challenges.json", "--solutions", "solutions.json",
		"--out", "aug2/challenges.json", "--variants", "3", "--seed", "7")
	if again != strings.ReplaceAll(out, "aug/", "aug2/") {
		t.Fatalf("second augment output = %q", again)
	}
	data2, err := os.ReadFile(filepath.Join(dir, "aug2", "challenges.json"))
	if err != nil {
		t.Fatalf("read second augmented challenges: %v", err)
	}
	if !bytes.Equal(data, data2) {
		t.Fatalf("augmentation is not reproducible for the same seed")
	}

	prepared := execute(t, "prepare", "--challenges", "aug/challenges.json", "--solutions", "aug/solutions.json",
		"--out", "ft/train.jsonl", "--mode", "meta", "--limit", "4")
	if !strings.Contains(prepared, "wrote 4 examples") {
		t.Fatalf("prepare output = %q", prepared)
	}
	lines, err := os.ReadFile(filepath.Join(dir, "ft", "train.jsonl"))
	if err != nil {
		t.Fatalf("read jsonl: %v", err)
	}
	if n := bytes.Count(lines, []byte("\n")); n != 4 {
		t.Fatalf("jsonl lines = %d, want 4", n)
	}
}
