package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Miminimi234/lawl/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the finished store (offline, no network)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := store.Open(cfg.Paths.DBPath)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.Stats(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "total cases: %d\n", stats.TotalCases)
		if stats.MinDate != "" {
			fmt.Fprintf(out, "date range: %s to %s\n", stats.MinDate, stats.MaxDate)
		}
		if len(stats.TopCourts) > 0 {
			fmt.Fprintln(out, "top courts:")
			for _, cc := range stats.TopCourts {
				fmt.Fprintf(out, "  %s: %d\n", cc.Court, cc.Count)
			}
		}
		return nil
	},
}
