package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Axis selects the mirror line of a flip.
type Axis int

const (
	// Horizontal mirrors each row left to right.
	Horizontal Axis = iota
	// Vertical mirrors the row order top to bottom.
	Vertical
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "h"
	case Vertical:
		return "v"
	default:
		return "axis(" + strconv.Itoa(int(a)) + ")"
	}
}

// ErrNotBijection is returned for in-range color mappings that repeat a target.
var ErrNotBijection = errors.New("color mapping is not a bijection")

// Rotate turns g clockwise by quarterTurns quarter turns. Values are taken
// modulo 4, so negative turns rotate counterclockwise.
func Rotate(g Grid, quarterTurns int) (Grid, error) {
	if g.IsZero() {
		return Grid{}, &ShapeError{Reason: "grid has no rows"}
	}
	switch ((quarterTurns % 4) + 4) % 4 {
	case 1:
		out := blank(g.w, g.h)
		for r := 0; r < g.h; r++ {
			for c := 0; c < g.w; c++ {
				out.set(c, g.h-1-r, g.At(r, c))
			}
		}
		return out, nil
	case 2:
		out := blank(g.h, g.w)
		for r := 0; r < g.h; r++ {
			for c := 0; c < g.w; c++ {
				out.set(g.h-1-r, g.w-1-c, g.At(r, c))
			}
		}
		return out, nil
	case 3:
		out := blank(g.w, g.h)
		for r := 0; r < g.h; r++ {
			for c := 0; c < g.w; c++ {
				out.set(g.w-1-c, r, g.At(r, c))
			}
		}
		return out, nil
	default:
		return g.clone(), nil
	}
}

// Flip mirrors g across the given axis.
func Flip(g Grid, axis Axis) (Grid, error) {
	if g.IsZero() {
		return Grid{}, &ShapeError{Reason: "grid has no rows"}
	}
	if axis != Horizontal && axis != Vertical {
		return Grid{}, fmt.Errorf("flip: unknown axis %v", axis)
	}
	out := blank(g.h, g.w)
	for r := 0; r < g.h; r++ {
		for c := 0; c < g.w; c++ {
			if axis == Horizontal {
				out.set(r, g.w-1-c, g.At(r, c))
			} else {
				out.set(g.h-1-r, c, g.At(r, c))
			}
		}
	}
	return out, nil
}

// Permutation maps every color to its image. It must be a bijection on [0, NumColors).
type Permutation [NumColors]int

// IdentityPermutation maps every color to itself.
func IdentityPermutation() Permutation {
	var p Permutation
	for i := range p {
		p[i] = i
	}
	return p
}

// NewPermutation builds a permutation from a partial mapping; colors missing
// from m map to themselves.
func NewPermutation(m map[int]int) (Permutation, error) {
	p := IdentityPermutation()
	for from, to := range m {
		if from < 0 || from >= NumColors {
			return Permutation{}, &ColorRangeError{Row: -1, Col: from, Value: from}
		}
		p[from] = to
	}
	if err := p.Validate(); err != nil {
		return Permutation{}, err
	}
	return p, nil
}

// Validate checks that p is a bijection on the palette.
func (p Permutation) Validate() error {
	var hit [NumColors]bool
	for from, to := range p {
		if to < 0 || to >= NumColors {
			return &ColorRangeError{Row: -1, Col: from, Value: to}
		}
		if hit[to] {
			return fmt.Errorf("color %d is the image of more than one color: %w", to, ErrNotBijection)
		}
		hit[to] = true
	}
	return nil
}

// Inverse returns the permutation undoing p.
func (p Permutation) Inverse() Permutation {
	var inv Permutation
	for from, to := range p {
		inv[to] = from
	}
	return inv
}

// IsIdentity reports whether p maps every color to itself.
func (p Permutation) IsIdentity() bool {
	return p == IdentityPermutation()
}

// String lists the images of colors 0..9, e.g. "0213456789".
func (p Permutation) String() string {
	var b strings.Builder
	for _, to := range p {
		b.WriteString(strconv.Itoa(to))
	}
	return b.String()
}

// PermuteColors replaces every cell value v with p[v]. Shape is preserved.
func PermuteColors(g Grid, p Permutation) (Grid, error) {
	if g.IsZero() {
		return Grid{}, &ShapeError{Reason: "grid has no rows"}
	}
	if err := p.Validate(); err != nil {
		return Grid{}, err
	}
	out := blank(g.h, g.w)
	for i, v := range g.cells {
		out.cells[i] = p[v]
	}
	return out, nil
}

func (g Grid) clone() Grid {
	return Grid{h: g.h, w: g.w, cells: append([]int(nil), g.cells...)}
}
