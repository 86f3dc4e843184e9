package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/metalagman/arcft/internal/augment"
	"github.com/metalagman/arcft/internal/dataset"
	"github.com/metalagman/arcft/internal/finetune"
	"github.com/metalagman/arcft/internal/prompt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type augmentOptions struct {
	challenges    string
	solutions     string
	out           string
	outSolutions  string
	jsonl         string
	variants      int
	seed          uint64
	permuteColors bool
	includeSource bool
}

func augmentCmd() *cobra.Command {
	var opts augmentOptions
	cmd := &cobra.Command{
		Use:   "augment",
		Short: "Write geometric and color variants of every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := workingConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("variants") {
				opts.variants = cfg.Augment.Variants
			}
			if !cmd.Flags().Changed("seed") {
				opts.seed = cfg.Augment.Seed
			}
			if !cmd.Flags().Changed("permute-colors") {
				opts.permuteColors = cfg.Augment.PermuteColors
			}
			return runAugment(opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.challenges, "challenges", "", "source challenges JSON file")
	cmd.Flags().StringVar(&opts.solutions, "solutions", "", "source solutions JSON file")
	cmd.Flags().StringVar(&opts.out, "out", "", "output challenges JSON file")
	cmd.Flags().StringVar(&opts.outSolutions, "out-solutions", "", "output solutions JSON file")
	cmd.Flags().StringVar(&opts.jsonl, "jsonl", "", "also write meta-mode fine-tune JSONL of the variants")
	cmd.Flags().IntVar(&opts.variants, "variants", 4, "variants per task")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed for reproducible variants")
	cmd.Flags().BoolVar(&opts.permuteColors, "permute-colors", false, "also permute non-background colors")
	cmd.Flags().BoolVar(&opts.includeSource, "include-source", false, "keep the source tasks in the output")
	_ = cmd.MarkFlagRequired("challenges")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runAugment(opts augmentOptions, out io.Writer) error {
	if opts.variants < 1 {
		return fmt.Errorf("--variants must be at least 1")
	}
	tasks, err := loadTasks(opts.challenges, opts.solutions, 0)
	if err != nil {
		return err
	}
	res, err := augment.New(augment.Options{PermuteColors: opts.permuteColors}).Dataset(tasks, opts.variants, opts.seed)
	if err != nil {
		return err
	}
	for id, reason := range res.Skipped {
		log.Warn().Str("task_id", id).Err(reason).Msg("task skipped")
	}

	result := res.Tasks
	if opts.includeSource {
		result = append(append([]dataset.Task{}, tasks...), res.Tasks...)
	}
	if err := writeDataset(opts.out, result, dataset.WriteChallenges); err != nil {
		return err
	}
	if opts.outSolutions != "" {
		if err := writeDataset(opts.outSolutions, result, dataset.WriteSolutions); err != nil {
			return err
		}
	}
	if opts.jsonl != "" {
		records, err := finetune.Build(res.Tasks, prompt.ModeMeta, 0)
		if err != nil {
			return err
		}
		if err := finetune.WriteFile(opts.jsonl, records); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(out, "wrote %d tasks from %d sources to %s (%d skipped)\n",
		len(result), len(tasks), opts.out, len(res.Skipped))
	return err
}

func writeDataset(path string, tasks []dataset.Task, write func(io.Writer, []dataset.Task) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f, tasks); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
