package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/metalagman/arcft/internal/config"
	"github.com/metalagman/arcft/internal/rules"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and maintain learned rules",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesGetCmd())
	cmd.AddCommand(rulesRemoveCmd())
	cmd.AddCommand(rulesDecayCmd())
	cmd.AddCommand(rulesExportCmd())
	cmd.AddCommand(rulesImportCmd())
	return cmd
}

// withRuleStore opens the database for fn. Mutating commands also hold the
// data directory lock.
func withRuleStore(mutate bool, fn func(cfg config.Config, store *rules.Store) error) error {
	cfg, err := workingConfig()
	if err != nil {
		return err
	}
	if mutate {
		lock, err := lockDataDir(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()
	}
	storeDB, closeFn, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(cfg, rules.NewStore(storeDB))
}

func rulesListCmd() *cobra.Command {
	var (
		minConfidence float64
		format        string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules by confidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuleStore(false, func(cfg config.Config, store *rules.Store) error {
				if !cmd.Flags().Changed("min-confidence") {
					minConfidence = cfg.Rules.MinConfidence
				}
				list, err := store.List(cmd.Context(), minConfidence)
				if err != nil {
					return err
				}
				return printRules(cmd.OutOrStdout(), list, format)
			})
		},
	}
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "only rules at or above this confidence")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table | yaml")
	return cmd
}

func printRules(w io.Writer, list []rules.LearnedRule, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return fmt.Errorf("encode rules: %w", err)
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RULE ID\tCONFIDENCE\tSUCCESS\tATTEMPTS\tLAST USED\tDESCRIPTION")
		for _, r := range list {
			fmt.Fprintf(tw, "%s\t%.3f\t%d\t%d\t%s\t%s\n", r.ID, r.Confidence, r.SuccessCount, r.AttemptCount,
				r.LastUsedAt.Format(time.DateTime), r.Description)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func rulesGetCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "get <rule-id>",
		Short: "Show one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuleStore(false, func(_ config.Config, store *rules.Store) error {
				r, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if format != "yaml" {
					return printRules(cmd.OutOrStdout(), []rules.LearnedRule{r}, format)
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(r); err != nil {
					return fmt.Errorf("encode rule: %w", err)
				}
				return enc.Close()
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml | table")
	return cmd
}

func rulesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <rule-id>",
		Short: "Remove a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuleStore(true, func(_ config.Config, store *rules.Store) error {
				if err := store.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return err
			})
		},
	}
}

func rulesDecayCmd() *cobra.Command {
	var (
		olderThan time.Duration
		factor    float64
	)
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Scale down the counts of rules unused for a while",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuleStore(true, func(_ config.Config, store *rules.Store) error {
				n, err := store.Decay(cmd.Context(), time.Now().Add(-olderThan), factor)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "decayed %d rules\n", n)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "decay rules unused for this long")
	cmd.Flags().Float64Var(&factor, "factor", 0.5, "multiplier applied to the counts, within [0,1]")
	return cmd
}

func rulesExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export rules as JSON keyed by rule id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuleStore(false, func(_ config.Config, store *rules.Store) error {
				if out == "" || out == "-" {
					return store.Export(cmd.Context(), cmd.OutOrStdout())
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create export: %w", err)
				}
				if err := store.Export(cmd.Context(), f); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge rules from an export; existing rules are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuleStore(true, func(_ config.Config, store *rules.Store) error {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import: %w", err)
				}
				defer func() { _ = f.Close() }()
				n, err := store.Import(cmd.Context(), f)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", n)
				return err
			})
		},
	}
}
