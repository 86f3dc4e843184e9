// Package prompt builds the textual request sent to a reasoning backend for
// one test input of a task.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/metalagman/arcft/internal/dataset"
	"github.com/metalagman/arcft/internal/grid"
)

// Mode selects the instructional text of a request.
type Mode string

const (
	// ModePlain asks for the output grid and nothing else.
	ModePlain Mode = "plain"
	// ModeMeta allows reasoning before the final grid and an optional rule line.
	ModeMeta Mode = "meta"
)

// RulePrefix starts the line a backend may use to name the rule it inferred.
const RulePrefix = "RULE:"

// OutputContract is appended to every request regardless of mode.
const OutputContract = "The final test output grid must be a JSON array of arrays of integers, for example [[0,1],[1,0]]."

const (
	systemPlain = "You are an ARC-AGI grid transformer. Given training input/output pairs and one test input grid, " +
		"you must output the test output grid as a JSON array of arrays of integers. " +
		"Do not include any text or explanations. Output only the JSON array."
	systemMeta = "You are an ARC-AGI meta-reasoner. Infer abstract rules from training input/output pairs, " +
		"hypothesize general transformations, then apply them to the test input. " +
		"You may reason step by step before answering. End your answer with the final test output grid " +
		"as a JSON array of arrays of integers."
)

// ParseMode maps a configuration value to a Mode. Empty means plain.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeMeta:
		return ModeMeta, nil
	default:
		return "", fmt.Errorf("unknown prompt mode %q", s)
	}
}

// Request is a prompt for one (task, test index) pair.
type Request struct {
	TaskID    string
	TestIndex int
	Mode      Mode
	System    string
	User      string
}

// Text joins the system and user parts for backends that take a single string.
func (r Request) Text() string {
	return r.System + "\n\n" + r.User
}

// Build returns the request for test input testIndex of task. Training pairs
// are listed in their original order.
func Build(task dataset.Task, testIndex int, mode Mode) (Request, error) {
	if testIndex < 0 || testIndex >= len(task.TestInputs) {
		return Request{}, fmt.Errorf("task %s has no test input %d", task.ID, testIndex)
	}
	if mode == "" {
		mode = ModePlain
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.ID)
	switch mode {
	case ModePlain:
		b.WriteString("Training examples:\n")
		for i, p := range task.Train {
			fmt.Fprintf(&b, "- Example %d input: %s\n", i+1, FormatGrid(p.Input))
			fmt.Fprintf(&b, "- Example %d output: %s\n", i+1, FormatGrid(p.Output))
		}
	case ModeMeta:
		b.WriteString("Goal: infer a general rule from the training pairs that maps input to output, then apply it to the test input.\n")
		b.WriteString("Training pairs (input then output):\n")
		for i, p := range task.Train {
			fmt.Fprintf(&b, "- Input %d: %s\n", i+1, FormatGrid(p.Input))
			fmt.Fprintf(&b, "- Output %d: %s\n", i+1, FormatGrid(p.Output))
		}
	default:
		return Request{}, fmt.Errorf("unknown prompt mode %q", mode)
	}
	b.WriteString("Test input:\n")
	b.WriteString(FormatGrid(task.TestInputs[testIndex]))
	b.WriteString("\n")

	system := systemPlain
	if mode == ModeMeta {
		system = systemMeta
		fmt.Fprintf(&b, "Optionally state the rule you applied on its own line starting with %q before the grid.\n", RulePrefix)
		b.WriteString("Return the JSON array of the test output grid last.\n")
	} else {
		b.WriteString("Return only the JSON array of the test output grid.\n")
	}
	b.WriteString(OutputContract)

	return Request{
		TaskID:    task.ID,
		TestIndex: testIndex,
		Mode:      mode,
		System:    system,
		User:      b.String(),
	}, nil
}

// FormatGrid renders g as rows of comma separated cells, e.g. [[1, 2], [3, 4]].
func FormatGrid(g grid.Grid) string {
	var b strings.Builder
	b.WriteByte('[')
	for r := 0; r < g.Height(); r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('[')
		for c := 0; c < g.Width(); c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Itoa(g.At(r, c)))
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}
