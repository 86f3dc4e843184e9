package dataset

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metalagman/arcft/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const challengesDoc = `{
  "b2": {
    "train": [{"input": [[1,0],[0,0]], "output": [[0,1],[0,0]]}],
    "test": [{"input": [[2,0],[0,0]]}]
  },
  "a1": {
    "train": [
      {"input": [[1]], "output": [[2]]},
      {"input": [[3,3]], "output": [[4,4]]}
    ],
    "test": [{"input": [[5]]}, {"input": [[6]]}]
  }
}`

const solutionsDoc = `{"a1": [[[6]], [[7]]]}`

func TestDecode_IndexesTasksAndJoinsSolutions(t *testing.T) {
	t.Parallel()

	store, err := Decode(strings.NewReader(challengesDoc), strings.NewReader(solutionsDoc))
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())
	assert.Equal(t, []string{"a1", "b2"}, store.IDs())

	a1, ok := store.Get("a1")
	require.True(t, ok)
	require.Len(t, a1.Train, 2)
	assert.Equal(t, "[[3,3]]", a1.Train[1].Input.String())
	require.True(t, a1.HasAnswers())
	answer, ok := a1.Answer(1)
	require.True(t, ok)
	assert.Equal(t, "[[7]]", answer.String())

	b2, ok := store.Get("b2")
	require.True(t, ok)
	assert.False(t, b2.HasAnswers())
	_, ok = b2.Answer(0)
	assert.False(t, ok)

	assert.Len(t, store.Tasks(1), 1)
	assert.Len(t, store.Tasks(0), 2)
}

func TestDecode_UsesInlineTestOutputs(t *testing.T) {
	t.Parallel()

	doc := `{"t": {"train": [{"input": [[1]], "output": [[1]]}], "test": [{"input": [[2]], "output": [[3]]}]}}`
	store, err := Decode(strings.NewReader(doc), nil)
	require.NoError(t, err)
	task, _ := store.Get("t")
	require.True(t, task.HasAnswers())
	assert.Equal(t, "[[3]]", task.TestOutputs[0].String())
}

func TestDecode_FailsFastOnMalformedData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		doc       string
		solutions string
		check     func(t *testing.T, err error)
	}{
		{
			name: "schema violation",
			doc:  `{"t": {"train": "nope", "test": []}}`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidTask)
				assert.Contains(t, err.Error(), "schema validation failed")
			},
		},
		{
			name: "ragged grid",
			doc:  `{"t": {"train": [{"input": [[1,2],[3]], "output": [[1]]}], "test": [{"input": [[1]]}]}}`,
			check: func(t *testing.T, err error) {
				var shapeErr *grid.ShapeError
				require.True(t, errors.As(err, &shapeErr), "got %v", err)
				assert.Contains(t, err.Error(), "task t train 0 input")
			},
		},
		{
			name: "color out of range",
			doc:  `{"t": {"train": [{"input": [[11]], "output": [[1]]}], "test": [{"input": [[1]]}]}}`,
			check: func(t *testing.T, err error) {
				var colorErr *grid.ColorRangeError
				require.True(t, errors.As(err, &colorErr), "got %v", err)
			},
		},
		{
			name:      "solution count mismatch",
			doc:       `{"t": {"train": [], "test": [{"input": [[1]]}]}}`,
			solutions: `{"t": []}`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidTask)
			},
		},
		{
			name:      "solution for unknown task",
			doc:       `{"t": {"train": [], "test": [{"input": [[1]]}]}}`,
			solutions: `{"x": [[[1]]]}`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidTask)
				assert.Contains(t, err.Error(), "unknown task")
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var sol io.Reader
			if tc.solutions != "" {
				sol = strings.NewReader(tc.solutions)
			}
			_, err := Decode(strings.NewReader(tc.doc), sol)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestNewStore_RejectsDuplicateAndInconsistentTasks(t *testing.T) {
	t.Parallel()

	g := grid.MustNew([][]int{{1}})
	_, err := NewStore(Task{ID: "x", TestInputs: []grid.Grid{g}}, Task{ID: "x", TestInputs: []grid.Grid{g}})
	require.ErrorIs(t, err, ErrInvalidTask)

	_, err = NewStore(Task{ID: "y", TestInputs: []grid.Grid{g}, TestOutputs: []grid.Grid{}})
	require.ErrorIs(t, err, ErrInvalidTask)
}

func TestWriteChallengesAndSolutions_LoadBack(t *testing.T) {
	t.Parallel()

	store, err := Decode(strings.NewReader(challengesDoc), strings.NewReader(solutionsDoc))
	require.NoError(t, err)

	dir := t.TempDir()
	chPath := filepath.Join(dir, "challenges.json")
	solPath := filepath.Join(dir, "solutions.json")

	var ch, sol bytes.Buffer
	require.NoError(t, WriteChallenges(&ch, store.Tasks(0)))
	require.NoError(t, WriteSolutions(&sol, store.Tasks(0)))
	require.NoError(t, os.WriteFile(chPath, ch.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(solPath, sol.Bytes(), 0o644))
	assert.NotContains(t, sol.String(), "b2")

	reloaded, err := Load(chPath, solPath)
	require.NoError(t, err)
	for _, id := range store.IDs() {
		want, _ := store.Get(id)
		got, ok := reloaded.Get(id)
		require.True(t, ok)
		require.Equal(t, len(want.Grids()), len(got.Grids()))
		for i := range want.Grids() {
			assert.True(t, grid.Equal(want.Grids()[i], got.Grids()[i]), "%s grid %d", id, i)
		}
	}

	var again bytes.Buffer
	require.NoError(t, WriteChallenges(&again, reloaded.Tasks(0)))
	assert.Equal(t, ch.String(), again.String())
}

func TestTaskMap_LeavesOriginalUntouched(t *testing.T) {
	t.Parallel()

	store, err := Decode(strings.NewReader(challengesDoc), strings.NewReader(solutionsDoc))
	require.NoError(t, err)
	orig, _ := store.Get("a1")

	rotated, err := orig.Map("a1-rot", func(g grid.Grid) (grid.Grid, error) { return grid.Rotate(g, 1) })
	require.NoError(t, err)
	assert.Equal(t, "a1-rot", rotated.ID)
	assert.Equal(t, "[[3],[3]]", rotated.Train[1].Input.String())
	assert.Equal(t, "[[3,3]]", orig.Train[1].Input.String())
	assert.True(t, rotated.HasAnswers())
}
