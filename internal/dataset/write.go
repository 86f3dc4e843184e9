package dataset

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/metalagman/arcft/internal/grid"
)

type outPair struct {
	Input  grid.Grid  `json:"input"`
	Output *grid.Grid `json:"output,omitempty"`
}

type outTask struct {
	Train []outPair `json:"train"`
	Test  []outPair `json:"test"`
}

// WriteChallenges writes tasks in the challenges schema. Test outputs are
// omitted; write them separately with WriteSolutions.
func WriteChallenges(w io.Writer, tasks []Task) error {
	doc := make(map[string]outTask, len(tasks))
	for _, t := range tasks {
		ot := outTask{Train: make([]outPair, len(t.Train)), Test: make([]outPair, len(t.TestInputs))}
		for i, p := range t.Train {
			out := p.Output
			ot.Train[i] = outPair{Input: p.Input, Output: &out}
		}
		for i, g := range t.TestInputs {
			ot.Test[i] = outPair{Input: g}
		}
		if _, dup := doc[t.ID]; dup {
			return fmt.Errorf("%w: duplicate task id %q", ErrInvalidTask, t.ID)
		}
		doc[t.ID] = ot
	}
	return encode(w, doc)
}

// WriteSolutions writes the test outputs of every task that has answers.
func WriteSolutions(w io.Writer, tasks []Task) error {
	doc := make(map[string][]grid.Grid, len(tasks))
	for _, t := range tasks {
		if !t.HasAnswers() {
			continue
		}
		doc[t.ID] = t.TestOutputs
	}
	return encode(w, doc)
}

func encode(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}
