package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Miminimi234/lawl/ingest"
	"github.com/Miminimi234/lawl/normalize"
	"github.com/Miminimi234/lawl/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [artifact...]",
	Short: "Extract, normalize, and load downloaded artifacts into the store",
	Long: "Without arguments, every file in paths.raw_dir is ingested.\n" +
		"Re-running over already-loaded artifacts is a no-op.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		artifacts := args
		if len(artifacts) == 0 {
			artifacts, err = listArtifacts(cfg.Paths.RawDir)
			if err != nil {
				return err
			}
			if len(artifacts) == 0 {
				return fmt.Errorf("no artifacts in %s (run acquire first)", cfg.Paths.RawDir)
			}
		}

		s, err := store.Open(cfg.Paths.DBPath, store.WithMkdirAll())
		if err != nil {
			return err
		}
		defer s.Close()

		p := ingest.New(s, ingest.Config{
			BatchSize: cfg.Ingest.BatchSize,
			Workers:   cfg.Ingest.Workers,
			Format:    normalize.Format(cfg.Ingest.Format),
		})
		report, err := p.Run(ctx, artifacts...)
		if report != nil {
			fmt.Fprintf(cmd.OutOrStdout(),
				"archives: %d\nmembers: %d (skipped %d, parse errors %d)\nrecords: %d inserted, %d duplicate\n",
				report.Archives, report.Members, report.MembersSkipped,
				report.ParseErrors, report.Inserted, report.DuplicateSkipped)
		}
		return err
	},
}

// listArtifacts returns the regular files directly under dir, sorted by name.
func listArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
