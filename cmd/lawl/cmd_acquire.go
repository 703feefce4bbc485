package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Miminimi234/lawl/acquire"
	"github.com/Miminimi234/lawl/fetch"
)

const timeRound = 100 * time.Millisecond

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Download one dataset artifact, falling back across mirrors",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := os.MkdirAll(cfg.Paths.RawDir, 0o755); err != nil {
			return fmt.Errorf("create raw dir: %w", err)
		}

		client := fetch.NewClient(fetch.Options{
			ConnectTimeout: cfg.ConnectTimeout(),
			MaxAttempts:    cfg.Download.MaxAttempts,
			BackoffBase:    cfg.Download.BackoffBase,
			BackoffCap:     cfg.Download.BackoffCap,
			Jitter:         cfg.Jitter(),
		})
		coord := acquire.New(client, acquire.Options{
			DestDir:       cfg.Paths.RawDir,
			RequireDigest: cfg.Sources.RequireDigest,
		})

		res, err := coord.Run(ctx, cfg.PrimarySources(), cfg.MirrorSources())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "artifact: %s\nsize: %d bytes\nduration: %s\nverification: %s\n",
			res.Path, res.Size, res.Duration.Round(timeRound), res.Verification)
		return nil
	},
}
