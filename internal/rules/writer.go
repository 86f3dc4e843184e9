package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// ErrWriterClosed is returned by Submit after Close.
var ErrWriterClosed = errors.New("rule writer closed")

// Update is one queued observation of a rule.
type Update struct {
	Rule    LearnedRule
	Success bool
}

// Writer applies rule updates from concurrent evaluations one at a time on a
// single goroutine.
type Writer struct {
	store   *Store
	updates chan Update
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	startOnce sync.Once
	started   atomic.Bool

	errMu   sync.Mutex
	errs    []error
	applied int
}

// NewWriter creates a writer with a queue of the given size.
func NewWriter(store *Store, queueSize int) *Writer {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Writer{
		store:   store,
		updates: make(chan Update, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the writer goroutine. Updates are applied on a context that
// is not cancelled with ctx so a cancelled run still persists what it queued.
func (w *Writer) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.loop(context.WithoutCancel(ctx))
	})
}

func (w *Writer) loop(ctx context.Context) {
	defer close(w.done)
	for u := range w.updates {
		rule, err := w.store.Upsert(ctx, u.Rule, u.Success)
		w.errMu.Lock()
		if err != nil {
			w.errs = append(w.errs, err)
		} else {
			w.applied++
		}
		w.errMu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("description", u.Rule.Description).Msg("rule update failed")
			continue
		}
		log.Debug().Str("rule_id", rule.ID).Float64("confidence", rule.Confidence).
			Int("attempts", rule.AttemptCount).Msg("rule updated")
	}
}

// Submit queues an update, blocking while the queue is full.
func (w *Writer) Submit(ctx context.Context, u Update) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.updates <- u:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue rule update: %w", ctx.Err())
	}
}

// Observe parses rule reports from backend text and queues one update per
// report with the outcome of the prediction made alongside it.
func (w *Writer) Observe(ctx context.Context, text string, success bool) error {
	for _, rep := range ParseReported(text) {
		if err := w.Submit(ctx, Update{Rule: LearnedRule{Description: rep.Description, Pattern: rep.Pattern}, Success: success}); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting updates, waits for the queue to drain and returns
// the errors of failed updates.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.updates)
	w.mu.Unlock()

	if w.started.Load() {
		<-w.done
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return errors.Join(w.errs...)
}

// Applied returns the number of updates written so far.
func (w *Writer) Applied() int {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.applied
}
