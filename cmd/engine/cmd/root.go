// Package cmd implements the engine's CLI subcommands: run, run-once,
// sync-daemon, sync-once.
package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/svidal-nlive/instrumental-dbo/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Instrumental-extraction pipeline engine",
	Long: `engine claims album/track job bundles from configured queue
directories, separates vocals from accompaniment, merges and encodes
the requested variants, and publishes a manifest describing the
result. Its sync-* subcommands route published artifacts to remote
storage on a separate schedule.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runLoop(false, false)
	},
}

// Execute runs the selected subcommand (run, the default, if none is
// given) and returns its error, already wrapped in ExitError where the
// failure maps to a documented exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the engine's YAML config file")
	rootCmd.AddCommand(runCmd, runOnceCmd, syncDaemonCmd, syncOnceCmd)
}

// loadConfig loads and validates the engine configuration, mapping a
// load/validation failure onto exit code 2.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, exitErrf(2, "load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the engine's structured logger from cfg, following
// the corpus's zerolog field-building convention (service/component
// tagging, console or JSON output by config).
func newLogger(logging config.Logging) zerolog.Logger {
	level, err := zerolog.ParseLevel(logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var writer = os.Stderr
	if logging.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", "engine").Logger()
	}
	return zerolog.New(writer).With().Timestamp().Str("service", "engine").Logger()
}

func fatalFSErrf(format string, args ...any) error {
	return exitErrf(4, format, args...)
}
