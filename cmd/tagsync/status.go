package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tagsync/internal/config"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/db"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/queue"
	"github.com/mschirtzinger/tagsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show queue depth and library tag counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateLibrary(); err != nil {
			return err
		}

		report, err := collectStatus(cmd, cfg)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.Status(report))
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func collectStatus(cmd *cobra.Command, c *config.Config) (ui.StatusReport, error) {
	report := ui.StatusReport{
		QueuePath:   c.QueuePath(),
		LibraryPath: c.LibraryPath,
	}

	depth, err := queue.New(report.QueuePath, logger.Logger).Len()
	if err != nil {
		return report, err
	}
	report.QueueDepth = depth

	lib, err := db.OpenContext(cmd.Context(), c.LibraryPath, logger.Logger)
	if err != nil {
		return report, err
	}
	defer lib.Close()

	report.Stats, err = lib.GetStatsContext(cmd.Context())
	if err != nil {
		return report, fmt.Errorf("failed to read library stats: %w", err)
	}
	return report, nil
}
