package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/metalagman/arcft/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		envFile string
		debug   bool
		logJSON bool
	)
	cmd := &cobra.Command{
		Use:           "arcft",
		Short:         "arcft evaluates and augments ARC grid tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path (JSON or YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading config")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON lines")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if logJSON {
			logging.InitWriter(os.Stderr, debug, true)
		} else {
			logging.Init(debug)
		}
		return loadEnvFile(envFile)
	}

	cmd.AddCommand(evaluateCmd())
	cmd.AddCommand(augmentCmd())
	cmd.AddCommand(prepareCmd())
	cmd.AddCommand(rulesCmd())
	cmd.AddCommand(runsCmd())
	return cmd
}

// loadEnvFile exports variables from a dotenv file. Variables already set in
// the environment win. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
