package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/metalagman/arcft/internal/backend"
	"github.com/metalagman/arcft/internal/config"
	"github.com/metalagman/arcft/internal/eval"
	"github.com/metalagman/arcft/internal/prompt"
	"github.com/metalagman/arcft/internal/runs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type evaluateOptions struct {
	challenges     string
	solutions      string
	limit          int
	mode           string
	concurrency    int
	requireAnswers bool
	report         string
	format         string
}

func evaluateCmd() *cobra.Command {
	var opts evaluateOptions
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a backend on a challenges file",
		Long: "Evaluate every test input of a challenges file with the configured backend, " +
			"score predictions against solutions when known and record the run.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := workingConfig()
			if err != nil {
				return err
			}
			return runEvaluate(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.challenges, "challenges", "", "challenges JSON file")
	cmd.Flags().StringVar(&opts.solutions, "solutions", "", "solutions JSON file")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "evaluate at most N tasks (0 = config or all)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "prompt mode: plain | meta (default from config)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "max backend calls in flight (default from config)")
	cmd.Flags().BoolVar(&opts.requireAnswers, "require-answers", false, "skip test inputs without a known solution")
	cmd.Flags().StringVar(&opts.report, "report", "", "also write the report to this file")
	cmd.Flags().StringVar(&opts.format, "format", "", "report format: json | yaml (default from --report extension)")
	_ = cmd.MarkFlagRequired("challenges")
	return cmd
}

func applyEvaluateFlags(cfg *config.Config, opts evaluateOptions) {
	if opts.mode != "" {
		cfg.Eval.Mode = opts.mode
	}
	if opts.concurrency > 0 {
		cfg.Eval.Concurrency = opts.concurrency
	}
	if opts.limit > 0 {
		cfg.Eval.Limit = opts.limit
	}
	if opts.requireAnswers {
		cfg.Eval.RequireAnswers = true
	}
}

func runEvaluate(ctx context.Context, cfg config.Config, opts evaluateOptions, out io.Writer) error {
	applyEvaluateFlags(&cfg, opts)
	mode, err := prompt.ParseMode(cfg.Eval.Mode)
	if err != nil {
		return err
	}
	formatSource := opts.format
	if formatSource == "" && opts.report != "" {
		formatSource = filepath.Ext(opts.report)
	}
	format, err := eval.ParseFormat(formatSource)
	if err != nil {
		return err
	}
	tasks, err := loadTasks(opts.challenges, opts.solutions, cfg.Eval.Limit)
	if err != nil {
		return err
	}

	var deps evalDeps
	app := newEvalApp(cfg, &deps)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	stopped := false
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		return app.Stop(context.WithoutCancel(ctx))
	}
	defer func() { _ = stop() }()

	runID, err := runs.NewRunID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	runDir := filepath.Join(cfg.RunsDir(), runID)
	if err := deps.Runs.CreateRun(ctx, runs.Run{
		ID:      runID,
		Dataset: opts.challenges,
		Backend: cfg.Backend.Type,
		Model:   cfg.Backend.Model,
		Mode:    string(mode),
		RunDir:  runDir,
	}); err != nil {
		return err
	}

	recorder := runs.NewRecorder(deps.Runs, runID)
	evalOpts := []eval.Option{eval.WithObserver(recorder)}
	if deps.Rules != nil {
		evalOpts = append(evalOpts, eval.WithRuleSink(deps.Rules))
	}
	evaluator := eval.New(deps.Backend, eval.Options{
		Mode:           mode,
		Concurrency:    cfg.Eval.Concurrency,
		CallTimeout:    cfg.Eval.CallTimeout,
		RequireAnswers: cfg.Eval.RequireAnswers,
		Backend:        backend.OptionsFrom(cfg.Backend),
	}, evalOpts...)

	runCtx := ctx
	if cfg.Eval.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Eval.Deadline)
		defer cancel()
	}
	log.Info().Str("run_id", runID).Int("tasks", len(tasks)).Str("backend", cfg.Backend.Type).
		Str("mode", string(mode)).Msg("evaluation started")
	report := evaluator.Run(runCtx, runID, tasks)

	persistCtx := context.WithoutCancel(ctx)
	status := runs.StatusCompleted
	if report.Cancelled {
		status = runs.StatusCancelled
	}
	if err := deps.Runs.FinishRun(persistCtx, runID, status, report.Summary); err != nil {
		return err
	}
	if err := recorder.Err(); err != nil {
		log.Warn().Err(err).Msg("some predictions were not recorded")
	}
	if err := report.WriteFile(filepath.Join(runDir, "report."+string(format)), format); err != nil {
		return err
	}
	if opts.report != "" {
		if err := report.WriteFile(opts.report, format); err != nil {
			return err
		}
	}
	if cfg.Retention.KeepLast > 0 || cfg.Retention.KeepDays > 0 {
		res, err := deps.Runs.Prune(persistCtx, cfg.RunsDir(), cfg.Retention, false)
		if err != nil {
			log.Warn().Err(err).Msg("prune runs")
		} else if res.Deleted > 0 {
			log.Info().Int("deleted", res.Deleted).Int("kept", res.Kept).Msg("pruned old runs")
		}
	}
	if err := stop(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	printSummary(out, report)
	return nil
}

func printSummary(w io.Writer, r eval.Report) {
	s := r.Summary
	fmt.Fprintf(w, "run %s", r.RunID)
	if r.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "total %d  completed %d  failed %d  errors %d  skipped %d\n",
		s.Total, s.Completed, s.Failed, s.Errors, s.Skipped)
	fmt.Fprintf(w, "correct %d/%d  accuracy %.4f\n", s.Correct, s.Scored, s.Accuracy)
	fmt.Fprintf(w, "time total %.2fs  avg %.2fs  min %.2fs  max %.2fs\n", s.TotalTime, s.AvgTime, s.MinTime, s.MaxTime)
}
