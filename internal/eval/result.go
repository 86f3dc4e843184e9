// Package eval runs tasks through a reasoning backend and scores the
// extracted predictions.
package eval

import (
	"time"

	"github.com/metalagman/arcft/internal/grid"
)

// Status is the state of one (task, test index) evaluation.
type Status string

// Evaluations move from pending to in progress and end in one of the
// terminal statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusError      Status = "error"
	StatusSkipped    Status = "skipped"
)

// Terminal reports whether s ends an evaluation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError, StatusSkipped:
		return true
	}
	return false
}

// PredictionResult is the outcome for one test input of a task. Correct is
// nil when no ground truth is known, and false for a failed or errored input
// that has one.
type PredictionResult struct {
	TaskID       string        `json:"task_id"                  yaml:"task_id"`
	TestIndex    int           `json:"test_index"               yaml:"test_index"`
	Status       Status        `json:"status"                   yaml:"status"`
	Predicted    *grid.Grid    `json:"predicted_grid,omitempty" yaml:"predicted_grid,omitempty"`
	Correct      *bool         `json:"correct"                  yaml:"correct"`
	CellAccuracy *float64      `json:"cell_accuracy,omitempty"  yaml:"cell_accuracy,omitempty"`
	Samples      int           `json:"samples,omitempty"        yaml:"samples,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"     yaml:"error_kind,omitempty"`
	Reason       string        `json:"reason,omitempty"         yaml:"reason,omitempty"`
	SolveSeconds float64       `json:"solve_time"               yaml:"solve_time"`
	SolveTime    time.Duration `json:"-"                        yaml:"-"`
}

// markUnsolved scores a result that produced no grid as incorrect when the
// answer is known.
func (r *PredictionResult) markUnsolved(hasAnswer bool) {
	if hasAnswer {
		correct := false
		r.Correct = &correct
	}
}

func (r *PredictionResult) setSolveTime(d time.Duration) {
	r.SolveTime = d
	r.SolveSeconds = d.Seconds()
}

// Summary aggregates a set of results. Times are in seconds and cover every
// result except skipped ones. Accuracy is Correct over Scored, the non-skipped
// results with a known answer, whatever their status.
type Summary struct {
	Total     int     `json:"total"      yaml:"total"`
	Completed int     `json:"completed"  yaml:"completed"`
	Failed    int     `json:"failed"     yaml:"failed"`
	Errors    int     `json:"errors"     yaml:"errors"`
	Skipped   int     `json:"skipped"    yaml:"skipped"`
	Scored    int     `json:"scored"     yaml:"scored"`
	Correct   int     `json:"correct"    yaml:"correct"`
	Accuracy  float64 `json:"accuracy"   yaml:"accuracy"`
	TotalTime float64 `json:"total_time" yaml:"total_time"`
	AvgTime   float64 `json:"avg_time"   yaml:"avg_time"`
	MinTime   float64 `json:"min_time"   yaml:"min_time"`
	MaxTime   float64 `json:"max_time"   yaml:"max_time"`
}

// Summarize computes the summary of results.
func Summarize(results []PredictionResult) Summary {
	s := Summary{Total: len(results)}
	timed := 0
	var total, lo, hi time.Duration
	for _, r := range results {
		switch r.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusError:
			s.Errors++
		case StatusSkipped:
			s.Skipped++
			continue
		}
		if r.Correct != nil {
			s.Scored++
			if *r.Correct {
				s.Correct++
			}
		}
		if timed == 0 || r.SolveTime < lo {
			lo = r.SolveTime
		}
		if timed == 0 || r.SolveTime > hi {
			hi = r.SolveTime
		}
		total += r.SolveTime
		timed++
	}
	if s.Scored > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Scored)
	}
	if timed > 0 {
		s.TotalTime = total.Seconds()
		s.AvgTime = (total / time.Duration(timed)).Seconds()
		s.MinTime = lo.Seconds()
		s.MaxTime = hi.Seconds()
	}
	return s
}
