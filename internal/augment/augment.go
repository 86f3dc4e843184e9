// Package augment synthesizes new ARC tasks by applying one combined
// geometric and color transform to every grid of a source task.
package augment

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/metalagman/arcft/internal/dataset"
	"github.com/metalagman/arcft/internal/grid"
)

// DegenerateTaskError reports a task that holds no colors to transform.
type DegenerateTaskError struct {
	TaskID string
}

func (e *DegenerateTaskError) Error() string {
	return fmt.Sprintf("augment: task %s has no grids", e.TaskID)
}

// Options controls variant generation.
type Options struct {
	// PermuteColors combines every geometric transform with a permutation of
	// the non-background colors present in the task.
	PermuteColors bool
}

// Variant is a synthetic task and the transform that produced it.
type Variant struct {
	Task      dataset.Task
	Transform grid.Transform
}

// Engine produces seeded, reproducible task variants.
type Engine struct {
	opts Options
}

// New returns an Engine with the given options.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Augment returns up to n variants of task. The same task, seed and n always
// yield the same variants in the same order. A transform whose grids equal
// the source's, or another variant's, is skipped.
func (e *Engine) Augment(task dataset.Task, n int, seed uint64) ([]Variant, error) {
	grids := task.Grids()
	if len(grids) == 0 {
		return nil, &DegenerateTaskError{TaskID: task.ID}
	}
	if n <= 0 {
		return nil, nil
	}

	rng := rand.New(rand.NewPCG(seed, taskHash(task.ID)))
	palette := presentColors(grids)

	geo := grid.Geometric()
	rng.Shuffle(len(geo), func(i, j int) { geo[i], geo[j] = geo[j], geo[i] })

	seen := make(map[string]bool, n)
	produced := map[string]bool{gridsKey(grids): true}
	variants := make([]Variant, 0, n)
	maxAttempts := max(4*n, len(geo))
	if !e.opts.PermuteColors || len(palette) < 2 {
		maxAttempts = len(geo)
	}
	for attempt := 0; attempt < maxAttempts && len(variants) < n; attempt++ {
		t := geo[attempt%len(geo)]
		if e.opts.PermuteColors && len(palette) >= 2 {
			t = grid.Compose(t, grid.ColorMap(shufflePalette(rng, palette)))
		}
		if seen[t.Name()] {
			continue
		}
		seen[t.Name()] = true

		synthetic, err := task.Map(VariantID(task.ID, t.Name(), seed), t.Apply)
		if err != nil {
			return nil, fmt.Errorf("augment %s with %s: %w", task.ID, t.Name(), err)
		}
		key := gridsKey(synthetic.Grids())
		if produced[key] {
			continue
		}
		produced[key] = true
		synthetic.Origin = &dataset.Origin{TaskID: task.ID, Transform: t.Name(), Seed: seed}
		variants = append(variants, Variant{Task: synthetic, Transform: t})
	}
	return variants, nil
}

// Result is the outcome of augmenting a collection.
type Result struct {
	Tasks   []dataset.Task
	Skipped map[string]error
}

// Dataset augments every task with n variants. Degenerate tasks are recorded in
// Skipped and do not stop the batch; any other error does.
func (e *Engine) Dataset(tasks []dataset.Task, n int, seed uint64) (Result, error) {
	res := Result{Skipped: map[string]error{}}
	for _, task := range tasks {
		variants, err := e.Augment(task, n, seed)
		if err != nil {
			var degenerate *DegenerateTaskError
			if errors.As(err, &degenerate) {
				res.Skipped[task.ID] = err
				continue
			}
			return Result{}, err
		}
		for _, v := range variants {
			res.Tasks = append(res.Tasks, v.Task)
		}
	}
	return res, nil
}

// VariantID derives a synthetic task id from its source id, transform and seed.
func VariantID(taskID, transform string, seed uint64) string {
	return fmt.Sprintf("%s|aug:%s|seed:%d", taskID, transform, seed)
}

// Reverse undoes the transform of a variant, returning a task with the source
// id that should equal the original.
func Reverse(v Variant) (dataset.Task, error) {
	id := v.Task.ID
	if v.Task.Origin != nil {
		id = v.Task.Origin.TaskID
	}
	return v.Task.Map(id, v.Transform.Inverse().Apply)
}

func gridsKey(grids []grid.Grid) string {
	var b strings.Builder
	for _, g := range grids {
		b.WriteString(g.String())
		b.WriteByte(';')
	}
	return b.String()
}

func taskHash(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

// presentColors returns the non-background colors used anywhere in grids.
func presentColors(grids []grid.Grid) []int {
	var seen [grid.NumColors]bool
	for _, g := range grids {
		for _, c := range g.Colors() {
			seen[c] = true
		}
	}
	out := make([]int, 0, grid.NumColors)
	for c := 1; c < grid.NumColors; c++ {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

func shufflePalette(rng *rand.Rand, palette []int) grid.Permutation {
	shuffled := append([]int(nil), palette...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	p := grid.IdentityPermutation()
	for i, c := range palette {
		p[c] = shuffled[i]
	}
	return p
}
