// Package runs persists evaluation runs and their per-prediction outcomes.
package runs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/arcft/internal/eval"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// timeLayout stores UTC timestamps with fixed-width nanoseconds so that
// their text order is their time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Run is a row of the runs table.
type Run struct {
	ID         string
	CreatedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Dataset    string
	Backend    string
	Model      string
	Mode       string
	RunDir     string
	Total      int
	Completed  int
	Failed     int
	Errors     int
	Skipped    int
	Correct    int
}

// Store provides persistence for runs and predictions.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store for run persistence.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateRun inserts the run record in the running state.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, status, dataset, backend, model, mode, run_dir)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(createdAt), StatusRunning, run.Dataset, run.Backend,
		nullableString(run.Model), run.Mode, run.RunDir); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordPrediction stores one prediction outcome, replacing an earlier
// outcome for the same task and test index.
func (s *Store) RecordPrediction(ctx context.Context, runID string, res eval.PredictionResult) error {
	var predicted any
	if res.Predicted != nil {
		predicted = res.Predicted.String()
	}
	var correct any
	if res.Correct != nil {
		correct = boolInt(*res.Correct)
	}
	var accuracy any
	if res.CellAccuracy != nil {
		accuracy = *res.CellAccuracy
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO predictions(run_id, task_id, test_index, status, correct, cell_accuracy,
		error_kind, reason, predicted, samples, solve_time_ms, recorded_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_id, test_index) DO UPDATE SET
			status=excluded.status, correct=excluded.correct, cell_accuracy=excluded.cell_accuracy,
			error_kind=excluded.error_kind, reason=excluded.reason, predicted=excluded.predicted,
			samples=excluded.samples, solve_time_ms=excluded.solve_time_ms, recorded_at=excluded.recorded_at`,
		runID, res.TaskID, res.TestIndex, string(res.Status), correct, accuracy,
		nullableString(res.ErrorKind), nullableString(res.Reason), predicted, res.Samples,
		res.SolveTime.Milliseconds(), formatTime(s.now())); err != nil {
		return fmt.Errorf("insert prediction %s/%d: %w", res.TaskID, res.TestIndex, err)
	}
	return nil
}

// FinishRun sets the final status and summary counts of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string, summary eval.Summary) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET status=?, finished_at=?, total=?, completed=?, failed=?, errors=?,
		skipped=?, correct=? WHERE run_id=?`,
		status, formatTime(s.now()), summary.Total, summary.Completed, summary.Failed,
		summary.Errors, summary.Skipped, summary.Correct, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	return nil
}

// GetRunStatus returns the status for a run id, or empty if missing.
func (s *Store) GetRunStatus(ctx context.Context, runID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id=?`, runID)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read run status: %w", err)
	}
	return status, nil
}

// ListRuns returns the most recent runs first. A limit of zero lists all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT run_id, created_at, finished_at, status, dataset, backend, COALESCE(model, ''), mode, run_dir,
		total, completed, failed, errors, skipped, correct FROM runs ORDER BY created_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var (
			r          Run
			createdAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &createdAt, &finishedAt, &r.Status, &r.Dataset, &r.Backend, &r.Model, &r.Mode,
			&r.RunDir, &r.Total, &r.Completed, &r.Failed, &r.Errors, &r.Skipped, &r.Correct); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if finishedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
				r.FinishedAt = &t
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// CountPredictions returns how many predictions a run has recorded.
func (s *Store) CountPredictions(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE run_id=?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

// NewRunID returns a sortable run id such as 20260102-150405-a1b2c3.
func NewRunID() (string, error) {
	suffix, err := randomHex(3)
	if err != nil {
		return "", err
	}
	ts := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("%s-%s", ts, suffix), nil
}

func randomHex(bytesLen int) (string, error) {
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
