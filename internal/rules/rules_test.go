package rules

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/metalagman/arcft/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	s := NewStore(conn)
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s
}

func TestConfidence_SmoothsTowardPrior(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, Confidence(0, 0), 1e-12)
	assert.InDelta(t, 1.0/3, Confidence(0, 1), 1e-12)
	assert.InDelta(t, 2.0/3, Confidence(1, 1), 1e-12)
	assert.InDelta(t, 0.75, Confidence(2, 2), 1e-12)
}

func TestUpsert_OneSuccessOneFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	first, err := s.Upsert(ctx, LearnedRule{Description: "Mirror the grid horizontally"}, true)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, 1, first.AttemptCount)
	assert.Equal(t, 1, first.SuccessCount)

	second, err := s.Upsert(ctx, LearnedRule{ID: first.ID, Description: first.Description}, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.AttemptCount)
	assert.Equal(t, 1, second.SuccessCount)
	assert.InDelta(t, 0.5, second.Confidence, 1e-12)

	lower, upper := Confidence(0, 1), Confidence(2, 2)
	assert.Greater(t, second.Confidence, lower)
	assert.Less(t, second.Confidence, upper)

	stored, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, second.AttemptCount, stored.AttemptCount)
	assert.Equal(t, first.CreatedAt, stored.CreatedAt)
	assert.True(t, stored.LastUsedAt.After(stored.CreatedAt))
}

func TestUpsert_ReusesRuleByNormalizedDescription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	a, err := s.Upsert(ctx, LearnedRule{Description: "Fill enclosed regions."}, true)
	require.NoError(t, err)
	b, err := s.Upsert(ctx, LearnedRule{Description: "  fill   ENCLOSED regions", Pattern: "flood fill"}, true)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 2, b.SuccessCount)
	assert.Equal(t, "flood fill", b.Pattern)

	_, err = s.Upsert(ctx, LearnedRule{Description: "   "}, true)
	require.Error(t, err)
}

func TestList_OrdersByConfidenceThenCreation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	older, err := s.Upsert(ctx, LearnedRule{Description: "older"}, true)
	require.NoError(t, err)
	weak, err := s.Upsert(ctx, LearnedRule{Description: "weak"}, false)
	require.NoError(t, err)
	newer, err := s.Upsert(ctx, LearnedRule{Description: "newer"}, true)
	require.NoError(t, err)
	strong, err := s.Upsert(ctx, LearnedRule{Description: "strong"}, true)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, strong, true)
	require.NoError(t, err)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	assert.Empty(t, cmp.Diff([]string{strong.ID, older.ID, newer.ID, weak.ID}, ids))

	confident, err := s.List(ctx, 0.6)
	require.NoError(t, err)
	assert.Len(t, confident, 3)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	r, err := s.Upsert(ctx, LearnedRule{Description: "rotate"}, true)
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, r.ID))
	_, err = s.Get(ctx, r.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Remove(ctx, r.ID), ErrNotFound)
}

func TestDecay_MovesStaleRulesTowardPrior(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	stale, err := s.Upsert(ctx, LearnedRule{Description: "stale"}, true)
	require.NoError(t, err)
	for range 3 {
		stale, err = s.Upsert(ctx, stale, true)
		require.NoError(t, err)
	}
	cutoff := s.now()
	fresh, err := s.Upsert(ctx, LearnedRule{Description: "fresh"}, true)
	require.NoError(t, err)

	n, err := s.Decay(ctx, cutoff, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Less(t, got.Confidence, stale.Confidence)
	assert.Greater(t, got.Confidence, 0.5)

	untouched, err := s.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.AttemptCount, untouched.AttemptCount)

	_, err = s.Decay(ctx, cutoff, 2)
	require.Error(t, err)
}

func TestExportImport_MergesExistingRulesWin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := newStore(t)
	dst := newStore(t)

	shared, err := src.Upsert(ctx, LearnedRule{Description: "shared"}, true)
	require.NoError(t, err)
	_, err = src.Upsert(ctx, LearnedRule{Description: "only in source", Pattern: "p"}, false)
	require.NoError(t, err)

	local, err := dst.Upsert(ctx, LearnedRule{Description: "Shared"}, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, &buf))
	assert.Contains(t, buf.String(), shared.ID)

	added, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	kept, err := dst.Get(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, kept.SuccessCount)

	all, err := dst.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	again, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Zero(t, again)

	_, err = dst.Import(ctx, strings.NewReader(`{"x": {"rule_id": "x", "description": "bad", "success_count": 3, "attempt_count": 1}}`))
	require.Error(t, err)
}

func TestParseReported(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{
		"I think the grid is mirrored.",
		"RULE: Mirror columns left to right",
		"",
		"1. Description: Fill enclosed areas with color 4",
		"   Pattern: flood fill from borders",
		"   Confidence: 0.9",
		"2. **Description:** mirror columns left to right.",
		"- pattern: keep background",
		"[[1,2],[3,4]]",
	}, "\n")
	got := ParseReported(text)
	// The second mirror rule normalizes to the first and is merged.
	require.Len(t, got, 2)
	assert.Equal(t, "Mirror columns left to right", got[0].Description)
	assert.Equal(t, "Fill enclosed areas with color 4", got[1].Description)
	assert.Equal(t, "flood fill from borders", got[1].Pattern)
	require.NotNil(t, got[1].Claimed)
	assert.InDelta(t, 0.9, *got[1].Claimed, 1e-12)

	patternOnly := ParseReported("pattern: keep background")
	require.Len(t, patternOnly, 1)
	assert.Equal(t, "keep background", patternOnly[0].Description)

	assert.Empty(t, ParseReported("[[0,0],[1,1]]"))
}

func TestWriter_SerializesConcurrentUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	w := NewWriter(s, 4)
	w.Start(ctx)

	const workers, perWorker = 8, 5
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range perWorker {
				text := fmt.Sprintf("reasoning\nRULE: shared rule\n[[%d]]", j)
				assert.NoError(t, w.Observe(ctx, text, (i+j)%2 == 0))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())
	assert.Equal(t, workers*perWorker, w.Applied())

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, workers*perWorker, all[0].AttemptCount)
	assert.Equal(t, 20, all[0].SuccessCount)
	assert.InDelta(t, Confidence(20, 40), all[0].Confidence, 1e-12)

	require.ErrorIs(t, w.Submit(ctx, Update{}), ErrWriterClosed)
	require.NoError(t, w.Close())
}
