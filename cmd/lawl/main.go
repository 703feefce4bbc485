// lawl downloads bulk case law archives and loads them into a local,
// indexed SQLite store for offline querying.
//
// Usage:
//
//	lawl acquire --config lawl.yaml
//	lawl ingest  --config lawl.yaml [artifact...]
//	lawl stats   --config lawl.yaml
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Miminimi234/lawl/acquire"
	"github.com/Miminimi234/lawl/config"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "lawl",
	Short:         "Bulk case law acquisition and ingestion",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var lvl slog.Level
		switch flagLogLevel {
		case "debug":
			lvl = slog.LevelDebug
		case "warn":
			lvl = slog.LevelWarn
		case "error":
			lvl = slog.LevelError
		default:
			lvl = slog.LevelInfo
		}
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "lawl.yaml", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "debug|info|warn|error")
	rootCmd.AddCommand(acquireCmd, ingestCmd, statsCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lawl: %v\n", err)
		// Usage errors (nothing configured to try) exit 2; runtime
		// failures, including source exhaustion, exit 1.
		if errors.Is(err, acquire.ErrNoSources) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
