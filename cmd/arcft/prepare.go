package main

import (
	"fmt"
	"io"

	"github.com/metalagman/arcft/internal/finetune"
	"github.com/metalagman/arcft/internal/prompt"
	"github.com/spf13/cobra"
)

type prepareOptions struct {
	challenges string
	solutions  string
	out        string
	mode       string
	limit      int
}

func prepareCmd() *cobra.Command {
	var opts prepareOptions
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Export solved tasks as chat fine-tune JSONL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.challenges, "challenges", "", "challenges JSON file")
	cmd.Flags().StringVar(&opts.solutions, "solutions", "", "solutions JSON file")
	cmd.Flags().StringVar(&opts.out, "out", "", "output JSONL file")
	cmd.Flags().StringVar(&opts.mode, "mode", "plain", "prompt mode: plain | meta")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "cap on the number of records (0 = all)")
	_ = cmd.MarkFlagRequired("challenges")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runPrepare(opts prepareOptions, out io.Writer) error {
	mode, err := prompt.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	tasks, err := loadTasks(opts.challenges, opts.solutions, 0)
	if err != nil {
		return err
	}
	records, err := finetune.Build(tasks, mode, opts.limit)
	if err != nil {
		return err
	}
	if err := finetune.WriteFile(opts.out, records); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "wrote %d examples to %s\n", len(records), opts.out)
	return err
}
