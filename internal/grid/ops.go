package grid

import (
	"fmt"
	"strings"
)

// Transform is a named, total operation on grids. Applying a transform and then
// its inverse returns the original grid.
type Transform interface {
	Name() string
	Apply(g Grid) (Grid, error)
	Inverse() Transform
}

type rotation struct{ turns int }

// Rotation returns the clockwise rotation by quarterTurns quarter turns.
func Rotation(quarterTurns int) Transform {
	return rotation{turns: ((quarterTurns % 4) + 4) % 4}
}

func (r rotation) Name() string {
	if r.turns == 0 {
		return "identity"
	}
	return fmt.Sprintf("rot%d", r.turns*90)
}

func (r rotation) Apply(g Grid) (Grid, error) { return Rotate(g, r.turns) }
func (r rotation) Inverse() Transform         { return Rotation(4 - r.turns) }

type reflection struct{ axis Axis }

// Reflection returns the flip across axis.
func Reflection(axis Axis) Transform { return reflection{axis: axis} }

func (f reflection) Name() string                { return "flip_" + f.axis.String() }
func (f reflection) Apply(g Grid) (Grid, error) { return Flip(g, f.axis) }
func (f reflection) Inverse() Transform         { return f }

type colorMap struct{ perm Permutation }

// ColorMap returns the transform replacing each color c with p[c].
func ColorMap(p Permutation) Transform { return colorMap{perm: p} }

func (m colorMap) Name() string                { return "perm:" + m.perm.String() }
func (m colorMap) Apply(g Grid) (Grid, error) { return PermuteColors(g, m.perm) }
func (m colorMap) Inverse() Transform         { return colorMap{perm: m.perm.Inverse()} }

type chain struct {
	name  string
	steps []Transform
}

// Compose returns the transform applying steps left to right.
func Compose(steps ...Transform) Transform {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	return chain{name: strings.Join(names, "+"), steps: append([]Transform(nil), steps...)}
}

// Named wraps t under a different name, e.g. a canonical alias for a composition.
func Named(name string, t Transform) Transform {
	if c, ok := t.(chain); ok {
		return chain{name: name, steps: c.steps}
	}
	return chain{name: name, steps: []Transform{t}}
}

func (c chain) Name() string { return c.name }

func (c chain) Apply(g Grid) (Grid, error) {
	out := g
	for _, s := range c.steps {
		next, err := s.Apply(out)
		if err != nil {
			return Grid{}, fmt.Errorf("apply %s: %w", s.Name(), err)
		}
		out = next
	}
	if len(c.steps) == 0 {
		return g.clone(), nil
	}
	return out, nil
}

func (c chain) Inverse() Transform {
	inv := make([]Transform, len(c.steps))
	for i, s := range c.steps {
		inv[len(c.steps)-1-i] = s.Inverse()
	}
	return Compose(inv...)
}

// Geometric returns the seven non-identity symmetries of the square in a fixed
// order. Transposition swaps rows with columns; anti-transposition mirrors
// across the other diagonal.
func Geometric() []Transform {
	return []Transform{
		Rotation(1),
		Rotation(2),
		Rotation(3),
		Reflection(Horizontal),
		Reflection(Vertical),
		Named("transpose", Compose(Rotation(1), Reflection(Horizontal))),
		Named("antitranspose", Compose(Rotation(1), Reflection(Vertical))),
	}
}

// ByName resolves a transform from its Name: a geometric transform, a
// "perm:<digits>" color map, or a "+"-joined composition of those.
func ByName(name string) (Transform, error) {
	parts := strings.Split(name, "+")
	if len(parts) > 1 {
		steps := make([]Transform, 0, len(parts))
		for _, part := range parts {
			t, err := ByName(part)
			if err != nil {
				return nil, err
			}
			steps = append(steps, t)
		}
		return Compose(steps...), nil
	}
	for _, t := range Geometric() {
		if t.Name() == name {
			return t, nil
		}
	}
	if digits, ok := strings.CutPrefix(name, "perm:"); ok {
		if len(digits) != NumColors {
			return nil, fmt.Errorf("transform %q: want %d digits", name, NumColors)
		}
		var p Permutation
		for i, ch := range digits {
			if ch < '0' || ch > '9' {
				return nil, fmt.Errorf("transform %q: invalid digit %q", name, ch)
			}
			p[i] = int(ch - '0')
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("transform %q: %w", name, err)
		}
		return ColorMap(p), nil
	}
	return nil, fmt.Errorf("unknown transform %q", name)
}
