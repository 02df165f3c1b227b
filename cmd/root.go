package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	dataDir  string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "penreg",
	Short: "Penalized linear regression with pluggable optimizers",
	Long: `penreg fits least-squares linear regression models with lasso, ridge or
elastic-net penalties. The model supplies loss, gradient and a numerical
Hessian; the chosen optimizer (glmnet or ista) minimizes the penalized
objective.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout carries the fitted parameters, so logs go to stderr.
		opts := &slog.HandlerOptions{Level: parseLogLevel(logLevel)}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for stored results")
}

// parseLogLevel maps debug, info, warn and error to slog levels. Anything
// else logs at info.
func parseLogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
