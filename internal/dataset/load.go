package dataset

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/metalagman/arcft/internal/grid"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/*.json
var schemaFS embed.FS

type rawPair struct {
	Input  [][]int  `json:"input"`
	Output *[][]int `json:"output,omitempty"`
}

type rawTask struct {
	Train []rawPair `json:"train"`
	Test  []rawPair `json:"test"`
}

// Load reads a challenges file and, when solutionsPath is not empty, the
// matching solutions file. Any malformed task aborts the load.
func Load(challengesPath, solutionsPath string) (*Store, error) {
	challenges, err := os.Open(challengesPath)
	if err != nil {
		return nil, fmt.Errorf("open challenges: %w", err)
	}
	defer func() { _ = challenges.Close() }()

	var solutions io.Reader
	if solutionsPath != "" {
		f, err := os.Open(solutionsPath)
		if err != nil {
			return nil, fmt.Errorf("open solutions: %w", err)
		}
		defer func() { _ = f.Close() }()
		solutions = f
	}
	return Decode(challenges, solutions)
}

// Decode parses a challenges document and an optional solutions document.
// Test outputs embedded in the challenges are used when every test entry of
// a task carries one; a solutions document takes precedence.
func Decode(challenges io.Reader, solutions io.Reader) (*Store, error) {
	data, err := io.ReadAll(challenges)
	if err != nil {
		return nil, fmt.Errorf("read challenges: %w", err)
	}
	if err := validateDocument("challenges.json", data); err != nil {
		return nil, err
	}
	var raw map[string]rawTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode challenges: %w", err)
	}

	var answers map[string][][][]int
	if solutions != nil {
		solData, err := io.ReadAll(solutions)
		if err != nil {
			return nil, fmt.Errorf("read solutions: %w", err)
		}
		if err := validateDocument("solutions.json", solData); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(solData, &answers); err != nil {
			return nil, fmt.Errorf("decode solutions: %w", err)
		}
		for id := range answers {
			if _, ok := raw[id]; !ok {
				return nil, fmt.Errorf("%w: solutions reference unknown task %q", ErrInvalidTask, id)
			}
		}
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		var sol [][][]int
		hasSol := false
		if answers != nil {
			sol, hasSol = answers[id]
		}
		t, err := buildTask(id, raw[id], sol, hasSol)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return NewStore(tasks...)
}

func buildTask(id string, raw rawTask, solution [][][]int, hasSolution bool) (Task, error) {
	t := Task{ID: id, Train: make([]Pair, 0, len(raw.Train)), TestInputs: make([]grid.Grid, 0, len(raw.Test))}
	for i, p := range raw.Train {
		in, err := grid.New(p.Input)
		if err != nil {
			return Task{}, fmt.Errorf("task %s train %d input: %w", id, i, err)
		}
		if p.Output == nil {
			return Task{}, fmt.Errorf("%w: task %s train %d has no output", ErrInvalidTask, id, i)
		}
		out, err := grid.New(*p.Output)
		if err != nil {
			return Task{}, fmt.Errorf("task %s train %d output: %w", id, i, err)
		}
		t.Train = append(t.Train, Pair{Input: in, Output: out})
	}

	inline := len(raw.Test) > 0
	for i, p := range raw.Test {
		in, err := grid.New(p.Input)
		if err != nil {
			return Task{}, fmt.Errorf("task %s test %d input: %w", id, i, err)
		}
		t.TestInputs = append(t.TestInputs, in)
		if p.Output == nil {
			inline = false
		}
	}

	switch {
	case hasSolution:
		if len(solution) != len(t.TestInputs) {
			return Task{}, fmt.Errorf("%w: task %s has %d solutions for %d test inputs",
				ErrInvalidTask, id, len(solution), len(t.TestInputs))
		}
		t.TestOutputs = make([]grid.Grid, len(solution))
		for i, rows := range solution {
			g, err := grid.New(rows)
			if err != nil {
				return Task{}, fmt.Errorf("task %s solution %d: %w", id, i, err)
			}
			t.TestOutputs[i] = g
		}
	case inline:
		t.TestOutputs = make([]grid.Grid, len(raw.Test))
		for i, p := range raw.Test {
			g, err := grid.New(*p.Output)
			if err != nil {
				return Task{}, fmt.Errorf("task %s test %d output: %w", id, i, err)
			}
			t.TestOutputs[i] = g
		}
	}
	return t, nil
}

func validateDocument(schemaName string, data []byte) error {
	schema, err := schemaFS.ReadFile("schema/" + schemaName)
	if err != nil {
		return fmt.Errorf("read schema %s: %w", schemaName, err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate %s: %w", strings.TrimSuffix(schemaName, ".json"), err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)
	return fmt.Errorf("%w: %s schema validation failed: %s",
		ErrInvalidTask, strings.TrimSuffix(schemaName, ".json"), strings.Join(errs, "; "))
}
