package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	tagsync "github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
)

var importCmd = &cobra.Command{
	Use:     "import",
	GroupID: "sync",
	Short:   "Attach downloader tags to TagStudio files",
	Long: `Read every post in the Danbooru downloader database and attach its tags to
the matching file in the TagStudio library.

Missing tags are created with their category color and placed under the
category tag (Artist, Copyright, Character, General, Meta). Every new tag is
appended to the work queue so 'tagsync implications' can look up its parents.

Files already carrying a group's first tag are skipped, so the import can be
run again after new downloads.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		p := newPipeline(cmd)
		if _, err := p.importTags(ctx); err != nil {
			return err
		}

		withImplications, _ := cmd.Flags().GetBool("implications")
		if !withImplications {
			return nil
		}
		_, err := p.syncImplications(ctx, concurrencyFor(cmd))
		return err
	},
}

var implicationsCmd = &cobra.Command{
	Use:     "implications",
	GroupID: "sync",
	Short:   "Mirror Danbooru tag implications for queued tags",
	Long: `Drain the work queue: look up every queued tag on Danbooru and add a parent
tag edge for each active implication whose tags both exist in the library.

Lookups run concurrently under a shared rate limit. The first failed lookup
stops the run; tags not yet resolved stay in the queue for the next run.
After an abort, wait a while and run again with --conservative.

Examples:
  tagsync implications
  tagsync implications --conservative
  tagsync implications --dashboard-port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		p := newPipeline(cmd)

		port, _ := cmd.Flags().GetInt("dashboard-port")
		if port > 0 {
			stop, err := p.startDashboard(port)
			if err != nil {
				return err
			}
			defer stop()
		}

		_, err := p.syncImplications(ctx, concurrencyFor(cmd))
		return err
	},
}

func init() {
	importCmd.Flags().Bool("implications", false, "Run the implication sync after importing")
	importCmd.Flags().Bool("ugoira-as-webp", false, "Match zip downloads to converted .webp files")
	importCmd.Flags().Int("concurrency", tagsync.DefaultConcurrency, "Concurrent Danbooru lookups (with --implications)")
	importCmd.Flags().Bool("conservative", false, "Check one tag at a time (with --implications)")

	implicationsCmd.Flags().Int("concurrency", tagsync.DefaultConcurrency, "Concurrent Danbooru lookups")
	implicationsCmd.Flags().Bool("conservative", false, "Check one tag at a time (use after being rate limited)")
	implicationsCmd.Flags().Int("dashboard-port", 0, "Serve live progress on this port (0 disables)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(implicationsCmd)
}

func newPipeline(cmd *cobra.Command) *pipeline {
	return &pipeline{
		cfg:    cfg,
		logger: logger.Logger,
		out:    cmd.OutOrStdout(),
	}
}

// concurrencyFor applies --conservative over the configured concurrency.
func concurrencyFor(cmd *cobra.Command) int {
	if conservative, _ := cmd.Flags().GetBool("conservative"); conservative {
		return tagsync.ConservativeConcurrency
	}
	return cfg.Concurrency
}
