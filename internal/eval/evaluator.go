package eval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/metalagman/arcft/internal/backend"
	"github.com/metalagman/arcft/internal/dataset"
	"github.com/metalagman/arcft/internal/extract"
	"github.com/metalagman/arcft/internal/grid"
	"github.com/metalagman/arcft/internal/logging"
	"github.com/metalagman/arcft/internal/prompt"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultCallTimeout = 2 * time.Minute

// Observer receives evaluation events. Methods are called from worker
// goroutines and must be safe for concurrent use.
type Observer interface {
	Started(taskID string, testIndex int)
	Finished(ctx context.Context, res PredictionResult)
}

// RuleSink receives the backend text behind a scored prediction.
type RuleSink interface {
	Observe(ctx context.Context, text string, success bool) error
}

// Options configure an Evaluator.
type Options struct {
	Mode prompt.Mode
	// Concurrency bounds the number of backend calls in flight.
	Concurrency int
	// CallTimeout bounds each backend call. Calls are detached from run
	// cancellation and end only by completing or by this timeout.
	CallTimeout time.Duration
	// RequireAnswers skips test inputs without ground truth.
	RequireAnswers bool
	Backend        backend.Options
}

// Evaluator runs tasks through a backend. It holds no per-run state and can
// be reused.
type Evaluator struct {
	backend   backend.Backend
	opts      Options
	observers []Observer
	rules     RuleSink
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(e *Evaluator) { e.observers = append(e.observers, o) }
}

// WithRuleSink sets where reported rules are sent.
func WithRuleSink(s RuleSink) Option {
	return func(e *Evaluator) { e.rules = s }
}

// New creates an Evaluator.
func New(b backend.Backend, opts Options, options ...Option) *Evaluator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Mode == "" {
		opts.Mode = prompt.ModePlain
	}
	e := &Evaluator{backend: b, opts: opts}
	for _, o := range options {
		o(e)
	}
	return e
}

type job struct {
	task      dataset.Task
	testIndex int
}

// Run evaluates every test input of tasks and returns the report. When ctx
// is cancelled no further backend calls are issued; calls already in flight
// finish and the report holds the results produced so far. The report is
// marked cancelled only when some test input was left unevaluated.
func (e *Evaluator) Run(ctx context.Context, runID string, tasks []dataset.Task) Report {
	var (
		jobs    []job
		results []PredictionResult
	)
	for _, t := range tasks {
		if len(t.TestInputs) == 0 {
			res := PredictionResult{TaskID: t.ID, Status: StatusSkipped, Reason: "task has no test input"}
			e.finish(ctx, res)
			results = append(results, res)
			continue
		}
		for i := range t.TestInputs {
			jobs = append(jobs, job{task: t, testIndex: i})
		}
	}

	var dropped atomic.Bool
	produced := make([]*PredictionResult, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.Concurrency)
	for i, j := range jobs {
		if ctx.Err() != nil {
			dropped.Store(true)
			break
		}
		g.Go(func() error {
			// The slot may have been granted after cancellation.
			if ctx.Err() != nil {
				dropped.Store(true)
				return nil
			}
			res := e.evaluate(ctx, j)
			produced[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range produced {
		if r != nil {
			results = append(results, *r)
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].TaskID != results[b].TaskID {
			return results[a].TaskID < results[b].TaskID
		}
		return results[a].TestIndex < results[b].TestIndex
	})

	return Report{
		RunID:     runID,
		Mode:      string(e.opts.Mode),
		Cancelled: dropped.Load(),
		Results:   results,
		Summary:   Summarize(results),
	}
}

func (e *Evaluator) evaluate(ctx context.Context, j job) PredictionResult {
	l := logging.Task(j.task.ID, j.testIndex)
	for _, o := range e.observers {
		o.Started(j.task.ID, j.testIndex)
	}
	res := PredictionResult{TaskID: j.task.ID, TestIndex: j.testIndex, Status: StatusInProgress}

	answer, hasAnswer := j.task.Answer(j.testIndex)
	if e.opts.RequireAnswers && !hasAnswer {
		res.Status = StatusSkipped
		res.Reason = "no ground truth"
		e.finish(ctx, res)
		return res
	}

	req, err := prompt.Build(j.task, j.testIndex, e.opts.Mode)
	if err != nil {
		res.Status = StatusSkipped
		res.Reason = err.Error()
		e.finish(ctx, res)
		return res
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	texts, err := e.backend.Invoke(callCtx, req, e.opts.Backend)
	res.setSolveTime(time.Since(start))
	res.Samples = len(texts)
	if err == nil && len(texts) == 0 {
		err = fmt.Errorf("%w: empty response", backend.ErrBackend)
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, backend.ErrTimeout) {
			err = fmt.Errorf("%w: %w", backend.ErrTimeout, err)
		}
		res.Status = StatusError
		res.markUnsolved(hasAnswer)
		res.ErrorKind = backend.Kind(err)
		res.Reason = err.Error()
		l.Warn().Err(err).Str("error_kind", res.ErrorKind).Msg("backend call failed")
		e.finish(ctx, res)
		return res
	}

	pred, text, err := vote(texts)
	if err != nil {
		res.Status = StatusFailed
		res.markUnsolved(hasAnswer)
		var extractErr *extract.ExtractionError
		if errors.As(err, &extractErr) {
			res.ErrorKind = string(extractErr.Kind)
		}
		res.Reason = err.Error()
		e.finish(ctx, res)
		return res
	}

	res.Status = StatusCompleted
	res.Predicted = &pred
	if hasAnswer {
		correct := grid.Equal(pred, answer)
		acc := grid.CellAccuracy(pred, answer)
		res.Correct = &correct
		res.CellAccuracy = &acc
		if e.rules != nil {
			if err := e.rules.Observe(context.WithoutCancel(ctx), text, correct); err != nil {
				l.Warn().Err(err).Msg("record reported rules")
			}
		}
	}
	e.finish(ctx, res)
	return res
}

func (e *Evaluator) finish(ctx context.Context, res PredictionResult) {
	ev := log.Debug()
	if res.Status != StatusCompleted {
		ev = log.Info()
	}
	ev.Str("task_id", res.TaskID).Int("test_index", res.TestIndex).Str("status", string(res.Status)).
		Dur("duration", res.SolveTime).Msg("prediction finished")
	for _, o := range e.observers {
		o.Finished(context.WithoutCancel(ctx), res)
	}
}

// vote extracts a grid from every text and returns the most frequent one and
// the first text that produced it. Ties go to the grid seen first. When no
// text yields a grid the first extraction error is returned.
func vote(texts []string) (grid.Grid, string, error) {
	type tally struct {
		g     grid.Grid
		text  string
		count int
		first int
	}
	var (
		firstErr error
		byKey    = map[string]*tally{}
	)
	for i, text := range texts {
		g, err := extract.Grid(text)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		key := g.String()
		if t, ok := byKey[key]; ok {
			t.count++
			continue
		}
		byKey[key] = &tally{g: g, text: text, count: 1, first: i}
	}
	var best *tally
	for _, t := range byKey {
		if best == nil || t.count > best.count || (t.count == best.count && t.first < best.first) {
			best = t
		}
	}
	if best == nil {
		return grid.Grid{}, "", firstErr
	}
	return best.g, best.text, nil
}
