package prompt

import (
	"strings"
	"testing"

	"github.com/metalagman/arcft/internal/dataset"
	"github.com/metalagman/arcft/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task() dataset.Task {
	return dataset.Task{
		ID: "abc",
		Train: []dataset.Pair{
			{Input: grid.MustNew([][]int{{1, 2}}), Output: grid.MustNew([][]int{{2, 1}})},
			{Input: grid.MustNew([][]int{{3}}), Output: grid.MustNew([][]int{{4}})},
		},
		TestInputs: []grid.Grid{grid.MustNew([][]int{{5, 6}, {7, 8}}), grid.MustNew([][]int{{9}})},
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{"": ModePlain, "plain": ModePlain, " META ": ModeMeta} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("philosophical")
	require.Error(t, err)
}

func TestBuild_PlainListsPairsInOrder(t *testing.T) {
	t.Parallel()

	req, err := Build(task(), 0, ModePlain)
	require.NoError(t, err)
	assert.Equal(t, "abc", req.TaskID)
	assert.Equal(t, 0, req.TestIndex)

	first := strings.Index(req.User, "Example 1 input: [[1, 2]]")
	second := strings.Index(req.User, "Example 2 input: [[3]]")
	require.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
	assert.Contains(t, req.User, "Test input:\n[[5, 6], [7, 8]]\n")
	assert.NotContains(t, req.User, "[[9]]")
	assert.True(t, strings.HasSuffix(req.User, OutputContract))
	assert.NotContains(t, req.User, RulePrefix)
}

func TestBuild_ModeChangesOnlyInstructions(t *testing.T) {
	t.Parallel()

	plain, err := Build(task(), 1, ModePlain)
	require.NoError(t, err)
	meta, err := Build(task(), 1, ModeMeta)
	require.NoError(t, err)

	assert.NotEqual(t, plain.System, meta.System)
	assert.Contains(t, meta.User, RulePrefix)
	for _, req := range []Request{plain, meta} {
		assert.Contains(t, req.User, "Test input:\n[[9]]\n")
		assert.True(t, strings.HasSuffix(req.User, OutputContract))
	}
}

func TestBuild_IsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Build(task(), 0, ModeMeta)
	require.NoError(t, err)
	b, err := Build(task(), 0, ModeMeta)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, a.System+"\n\n"+a.User, a.Text())
}

func TestBuild_RejectsMissingTestInput(t *testing.T) {
	t.Parallel()

	_, err := Build(task(), 2, ModePlain)
	require.Error(t, err)
	_, err = Build(task(), 0, Mode("loud"))
	require.Error(t, err)
}
