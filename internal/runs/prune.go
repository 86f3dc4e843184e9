package runs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/metalagman/arcft/internal/config"
	"github.com/rs/zerolog/log"
)

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
	Skipped    int
}

// Prune applies the retention policy. A run is kept while it is still
// running, is among the KeepLast newest, or is younger than KeepDays; every
// other run loses its report directory and its rows. With dryRun nothing is
// removed and Deleted counts what would be.
func (s *Store) Prune(ctx context.Context, runsDir string, policy config.RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	all, err := s.ListRuns(ctx, 0)
	if err != nil {
		return PruneResult{}, err
	}

	res := PruneResult{Considered: len(all)}
	expired := expiredRuns(all, policy, s.now())
	res.Kept = len(all) - len(expired)
	if dryRun {
		res.Deleted = len(expired)
		return res, nil
	}

	for _, run := range expired {
		dir := run.RunDir
		if dir == "" {
			dir = filepath.Join(runsDir, run.ID)
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID).Str("dir", dir).Msg("keep run: remove report directory")
			res.Skipped++
			continue
		}
		// Predictions go with the run through the foreign key.
		if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, run.ID); err != nil {
			return res, fmt.Errorf("delete run %s: %w", run.ID, err)
		}
		res.Deleted++
	}
	return res, nil
}

// expiredRuns picks the runs outside the policy from newest-first runs.
func expiredRuns(newestFirst []Run, policy config.RetentionPolicy, now time.Time) []Run {
	var cutoff time.Time
	if policy.KeepDays > 0 {
		cutoff = now.Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}
	var out []Run
	for rank, run := range newestFirst {
		switch {
		case run.Status == StatusRunning:
		case policy.KeepLast > 0 && rank < policy.KeepLast:
		// An unreadable creation time is never old enough to prune.
		case policy.KeepDays > 0 && (run.CreatedAt.IsZero() || run.CreatedAt.After(cutoff)):
		default:
			out = append(out, run)
		}
	}
	return out
}
