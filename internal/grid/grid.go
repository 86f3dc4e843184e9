// Package grid provides the immutable color grid used by ARC tasks and the
// pure transforms defined over it.
package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NumColors is the size of the color palette. Cells hold values in [0, NumColors).
const NumColors = 10

// ShapeError reports a grid that is not a non-empty rectangle.
type ShapeError struct {
	Row    int
	Want   int
	Got    int
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Reason != "" {
		return "grid shape: " + e.Reason
	}
	return fmt.Sprintf("grid shape: row %d has %d cells, want %d", e.Row, e.Got, e.Want)
}

// ColorRangeError reports a cell or mapping value outside [0, NumColors).
type ColorRangeError struct {
	Row   int
	Col   int
	Value int
}

func (e *ColorRangeError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("color range: mapping entry %d -> %d outside [0,%d)", e.Col, e.Value, NumColors)
	}
	return fmt.Sprintf("color range: cell (%d,%d) = %d outside [0,%d)", e.Row, e.Col, e.Value, NumColors)
}

// Grid is a rectangular array of color indices. The zero value is not a valid
// grid; use New or UnmarshalJSON to build one.
type Grid struct {
	h, w  int
	cells []int
}

// New validates rows and returns a grid holding a copy of them.
func New(rows [][]int) (Grid, error) {
	if err := Validate(rows); err != nil {
		return Grid{}, err
	}
	h, w := len(rows), len(rows[0])
	cells := make([]int, 0, h*w)
	for _, row := range rows {
		cells = append(cells, row...)
	}
	return Grid{h: h, w: w, cells: cells}, nil
}

// MustNew is like New but panics on invalid input. Intended for tests and literals.
func MustNew(rows [][]int) Grid {
	g, err := New(rows)
	if err != nil {
		panic(err)
	}
	return g
}

// Validate checks that rows form a rectangular grid of valid colors without building it.
func Validate(rows [][]int) error {
	if len(rows) == 0 {
		return &ShapeError{Reason: "grid has no rows"}
	}
	width := len(rows[0])
	if width == 0 {
		return &ShapeError{Reason: "grid has no columns"}
	}
	for r, row := range rows {
		if len(row) != width {
			return &ShapeError{Row: r, Want: width, Got: len(row)}
		}
		for c, v := range row {
			if v < 0 || v >= NumColors {
				return &ColorRangeError{Row: r, Col: c, Value: v}
			}
		}
	}
	return nil
}

func blank(h, w int) Grid {
	return Grid{h: h, w: w, cells: make([]int, h*w)}
}

// Height returns the number of rows.
func (g Grid) Height() int { return g.h }

// Width returns the number of columns.
func (g Grid) Width() int { return g.w }

// IsZero reports whether g is the zero value (no cells).
func (g Grid) IsZero() bool { return len(g.cells) == 0 }

// At returns the cell at row r, column c.
func (g Grid) At(r, c int) int { return g.cells[r*g.w+c] }

func (g Grid) set(r, c, v int) { g.cells[r*g.w+c] = v }

// Rows returns a fresh copy of the grid as nested slices.
func (g Grid) Rows() [][]int {
	rows := make([][]int, g.h)
	for r := range rows {
		rows[r] = append([]int(nil), g.cells[r*g.w:(r+1)*g.w]...)
	}
	return rows
}

// Colors returns the distinct colors present in g in ascending order.
func (g Grid) Colors() []int {
	var seen [NumColors]bool
	for _, v := range g.cells {
		seen[v] = true
	}
	out := make([]int, 0, NumColors)
	for c, ok := range seen {
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// Equal reports exact cell-wise equality, including shape.
func Equal(a, b Grid) bool {
	if a.h != b.h || a.w != b.w {
		return false
	}
	for i := range a.cells {
		if a.cells[i] != b.cells[i] {
			return false
		}
	}
	return true
}

// Equal reports whether g and other hold the same cells in the same shape.
func (g Grid) Equal(other Grid) bool { return Equal(g, other) }

// CellAccuracy returns the fraction of agreeing cells after padding both grids
// with zeros to their common bounding shape.
func CellAccuracy(predicted, expected Grid) float64 {
	h := max(predicted.h, expected.h)
	w := max(predicted.w, expected.w)
	if h == 0 || w == 0 {
		return 0
	}
	cellAt := func(g Grid, r, c int) int {
		if r < g.h && c < g.w {
			return g.At(r, c)
		}
		return 0
	}
	agree := 0
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if cellAt(predicted, r, c) == cellAt(expected, r, c) {
				agree++
			}
		}
	}
	return float64(agree) / float64(h*w)
}

// String returns the compact JSON form, e.g. [[1,2],[3,4]].
func (g Grid) String() string {
	var b bytes.Buffer
	b.WriteByte('[')
	for r := 0; r < g.h; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for c := 0; c < g.w; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(g.At(r, c)))
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}

// MarshalJSON encodes the grid as an array of arrays of integers.
func (g Grid) MarshalJSON() ([]byte, error) {
	if g.IsZero() {
		return nil, &ShapeError{Reason: "grid has no rows"}
	}
	return []byte(g.String()), nil
}

// UnmarshalJSON decodes and validates an array of arrays of integers.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var rows [][]int
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("decode grid: %w", err)
	}
	parsed, err := New(rows)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// MarshalYAML encodes the grid as nested sequences.
func (g Grid) MarshalYAML() (any, error) {
	return g.Rows(), nil
}
