// Package dataset loads, validates, indexes and writes ARC task collections.
package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/metalagman/arcft/internal/grid"
)

// Pair is one training example.
type Pair struct {
	Input  grid.Grid `json:"input"`
	Output grid.Grid `json:"output"`
}

// Origin records how a synthetic task was derived from a source task.
type Origin struct {
	TaskID    string `json:"task_id"`
	Transform string `json:"transform"`
	Seed      uint64 `json:"seed"`
}

// Task is a set of training pairs and test inputs sharing one hidden rule.
// TestOutputs is nil when ground truth is not available. Tasks are read-only
// once constructed.
type Task struct {
	ID          string
	Train       []Pair
	TestInputs  []grid.Grid
	TestOutputs []grid.Grid
	Origin      *Origin
}

// ErrInvalidTask is wrapped by every Task validation failure.
var ErrInvalidTask = errors.New("invalid task")

// HasAnswers reports whether ground truth is present for every test input.
func (t Task) HasAnswers() bool {
	return t.TestOutputs != nil && len(t.TestOutputs) == len(t.TestInputs)
}

// Answer returns the ground-truth output for test index i, if known.
func (t Task) Answer(i int) (grid.Grid, bool) {
	if !t.HasAnswers() || i < 0 || i >= len(t.TestOutputs) {
		return grid.Grid{}, false
	}
	return t.TestOutputs[i], true
}

// Validate rejects an empty id or grid and a test output count that differs
// from the test inputs.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTask)
	}
	if t.TestOutputs != nil && len(t.TestOutputs) != len(t.TestInputs) {
		return fmt.Errorf("%w: task %s has %d test outputs for %d test inputs",
			ErrInvalidTask, t.ID, len(t.TestOutputs), len(t.TestInputs))
	}
	for i, p := range t.Train {
		if p.Input.IsZero() || p.Output.IsZero() {
			return fmt.Errorf("%w: task %s train pair %d has an empty grid", ErrInvalidTask, t.ID, i)
		}
	}
	for i, g := range t.TestInputs {
		if g.IsZero() {
			return fmt.Errorf("%w: task %s test input %d is empty", ErrInvalidTask, t.ID, i)
		}
	}
	return nil
}

// Grids returns every grid of the task: train inputs and outputs in order,
// then test inputs, then test outputs.
func (t Task) Grids() []grid.Grid {
	out := make([]grid.Grid, 0, 2*len(t.Train)+len(t.TestInputs)+len(t.TestOutputs))
	for _, p := range t.Train {
		out = append(out, p.Input, p.Output)
	}
	out = append(out, t.TestInputs...)
	out = append(out, t.TestOutputs...)
	return out
}

// Map applies fn to every grid of the task and returns the resulting task
// under a new id. The original task is not modified.
func (t Task) Map(id string, fn func(grid.Grid) (grid.Grid, error)) (Task, error) {
	out := Task{ID: id, Train: make([]Pair, len(t.Train)), TestInputs: make([]grid.Grid, len(t.TestInputs))}
	for i, p := range t.Train {
		in, err := fn(p.Input)
		if err != nil {
			return Task{}, fmt.Errorf("train %d input: %w", i, err)
		}
		o, err := fn(p.Output)
		if err != nil {
			return Task{}, fmt.Errorf("train %d output: %w", i, err)
		}
		out.Train[i] = Pair{Input: in, Output: o}
	}
	for i, g := range t.TestInputs {
		mapped, err := fn(g)
		if err != nil {
			return Task{}, fmt.Errorf("test %d input: %w", i, err)
		}
		out.TestInputs[i] = mapped
	}
	if t.TestOutputs != nil {
		out.TestOutputs = make([]grid.Grid, len(t.TestOutputs))
		for i, g := range t.TestOutputs {
			mapped, err := fn(g)
			if err != nil {
				return Task{}, fmt.Errorf("test %d output: %w", i, err)
			}
			out.TestOutputs[i] = mapped
		}
	}
	return out, nil
}
