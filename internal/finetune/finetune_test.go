package finetune

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/metalagman/arcft/internal/dataset"
	"github.com/metalagman/arcft/internal/grid"
	"github.com/metalagman/arcft/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tasks() []dataset.Task {
	train := []dataset.Pair{{Input: grid.MustNew([][]int{{1}}), Output: grid.MustNew([][]int{{2}})}}
	return []dataset.Task{
		{
			ID:          "a",
			Train:       train,
			TestInputs:  []grid.Grid{grid.MustNew([][]int{{1, 1}}), grid.MustNew([][]int{{3}})},
			TestOutputs: []grid.Grid{grid.MustNew([][]int{{2, 2}}), grid.MustNew([][]int{{4}})},
		},
		{ID: "unsolved", Train: train, TestInputs: []grid.Grid{grid.MustNew([][]int{{5}})}},
		{
			ID:          "b",
			Train:       train,
			TestInputs:  []grid.Grid{grid.MustNew([][]int{{7}})},
			TestOutputs: []grid.Grid{grid.MustNew([][]int{{8}})},
		},
	}
}

func TestBuild_OneRecordPerAnsweredTestInput(t *testing.T) {
	t.Parallel()

	records, err := Build(tasks(), prompt.ModePlain, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0].Messages
	require.Len(t, first, 3)
	assert.Equal(t, []string{"system", "user", "assistant"}, []string{first[0].Role, first[1].Role, first[2].Role})
	assert.Equal(t, "[[2, 2]]", first[2].Content)
	assert.Contains(t, first[1].Content, "Task: a")
	assert.Equal(t, "[[8]]", records[2].Messages[2].Content)

	limited, err := Build(tasks(), prompt.ModeMeta, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.NotEqual(t, first[0].Content, limited[0].Messages[0].Content)
}

func TestWriteFile_EmitsJSONLines(t *testing.T) {
	t.Parallel()

	records, err := Build(tasks(), prompt.ModePlain, 0)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "out", "train.jsonl")
	require.NoError(t, WriteFile(path, records))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	lines := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		assert.Len(t, rec.Messages, 3)
		lines++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, 3, lines)
}
