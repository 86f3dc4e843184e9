package runs

import (
	"context"
	"errors"
	"sync"

	"github.com/metalagman/arcft/internal/eval"
	"github.com/rs/zerolog/log"
)

// Recorder persists predictions as an evaluation produces them.
type Recorder struct {
	store *Store
	runID string

	mu   sync.Mutex
	errs []error
}

// NewRecorder returns an eval.Observer that stores results under runID.
func NewRecorder(store *Store, runID string) *Recorder {
	return &Recorder{store: store, runID: runID}
}

// Started implements eval.Observer.
func (r *Recorder) Started(taskID string, testIndex int) {
	log.Debug().Str("run_id", r.runID).Str("task_id", taskID).Int("test_index", testIndex).Msg("prediction started")
}

// Finished implements eval.Observer.
func (r *Recorder) Finished(ctx context.Context, res eval.PredictionResult) {
	if err := r.store.RecordPrediction(ctx, r.runID, res); err != nil {
		log.Warn().Err(err).Str("run_id", r.runID).Msg("record prediction")
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}
}

// Err returns the joined errors of failed writes.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

var _ eval.Observer = (*Recorder)(nil)
