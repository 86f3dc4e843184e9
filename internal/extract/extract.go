// Package extract recovers a grid from free-form backend text.
//
// The whole trimmed text is first decoded as a JSON array of arrays of
// integers. When that fails the text is scanned for the first balanced
// bracket substring with that shape. Candidates are never padded or
// truncated: a ragged or out of range candidate is reported as malformed.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/metalagman/arcft/internal/grid"
)

// Kind categorizes an extraction failure.
type Kind string

const (
	// NoCandidate means the text holds nothing shaped like a grid.
	NoCandidate Kind = "no_candidate"
	// MalformedCandidate means a grid-shaped candidate failed validation.
	MalformedCandidate Kind = "malformed_candidate"
)

var (
	// ErrNoCandidate matches extraction errors of kind NoCandidate.
	ErrNoCandidate = errors.New("no candidate found")
	// ErrMalformedCandidate matches extraction errors of kind MalformedCandidate.
	ErrMalformedCandidate = errors.New("malformed candidate")
)

// ExtractionError is returned when no valid grid can be recovered.
type ExtractionError struct {
	Kind      Kind
	Candidate string
	Err       error
}

func (e *ExtractionError) Error() string {
	if e.Kind == NoCandidate {
		return "extract grid: " + ErrNoCandidate.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("extract grid: %s %s: %v", ErrMalformedCandidate, truncate(e.Candidate, 80), e.Err)
	}
	return fmt.Sprintf("extract grid: %s %s", ErrMalformedCandidate, truncate(e.Candidate, 80))
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for the error kind.
func (e *ExtractionError) Is(target error) bool {
	switch target {
	case ErrNoCandidate:
		return e.Kind == NoCandidate
	case ErrMalformedCandidate:
		return e.Kind == MalformedCandidate
	}
	return false
}

var errNonInteger = errors.New("non-integer cell")

var integerLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)

// Grid extracts the predicted grid from text.
func Grid(text string) (grid.Grid, error) {
	trimmed := strings.TrimSpace(text)

	if rows, err := decodeRows(trimmed); err == nil {
		return build(trimmed, rows)
	}

	var nearMiss *ExtractionError
	for start := strings.IndexByte(trimmed, '['); start >= 0; {
		if end := matchBracket(trimmed, start); end >= 0 {
			candidate := trimmed[start : end+1]
			rows, err := decodeRows(candidate)
			switch {
			case err == nil:
				return build(candidate, rows)
			case errors.Is(err, errNonInteger) && nearMiss == nil:
				nearMiss = &ExtractionError{Kind: MalformedCandidate, Candidate: candidate, Err: err}
			}
		}

		next := strings.IndexByte(trimmed[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	if nearMiss != nil {
		return grid.Grid{}, nearMiss
	}
	return grid.Grid{}, &ExtractionError{Kind: NoCandidate}
}

func build(candidate string, rows [][]int) (grid.Grid, error) {
	g, err := grid.New(rows)
	if err != nil {
		return grid.Grid{}, &ExtractionError{Kind: MalformedCandidate, Candidate: candidate, Err: err}
	}
	return g, nil
}

// decodeRows decodes s as a non-empty JSON array whose elements are arrays of
// integers. Shape is not checked here.
func decodeRows(s string) ([][]int, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var outer []any
	if err := dec.Decode(&outer); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after candidate")
	}
	if len(outer) == 0 {
		return nil, errors.New("empty outer array")
	}

	rows := make([][]int, len(outer))
	nonInteger := false
	for i, item := range outer {
		inner, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("element %d is not an array", i)
		}
		row := make([]int, len(inner))
		for j, leaf := range inner {
			num, ok := leaf.(json.Number)
			if !ok || !integerLiteral.MatchString(num.String()) {
				nonInteger = true
				continue
			}
			v, err := strconv.Atoi(num.String())
			if err != nil {
				// Overflows int, keep it out of the color range.
				v = grid.NumColors
			}
			row[j] = v
		}
		rows[i] = row
	}
	if nonInteger {
		return nil, errNonInteger
	}
	return rows, nil
}

// matchBracket returns the index of the bracket closing the one at start, or
// -1 when the text ends first.
func matchBracket(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
