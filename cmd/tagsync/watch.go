package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/daemon"
	tagsync "github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
	"github.com/mschirtzinger/tagsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "advanced",
	Short:   "Import and sync whenever the downloader database changes",
	Long: `Watch the Danbooru downloader database and run an import followed by an
implication sync after it changes.

Writes are debounced (default 2s, see --debounce) so a burst of downloads
triggers a single run. A failed run is logged and watching continues.

Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

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

		run := func(ctx context.Context) error {
			if _, err := p.importTags(ctx); err != nil {
				return err
			}
			_, err := p.syncImplications(ctx, concurrencyFor(cmd))
			return err
		}

		watcher, err := daemon.New(cfg.SourcePath, run, &daemon.Config{
			DebounceInterval: cfg.DebounceInterval,
			RunOnStart:       true,
			Logger:           logger.Logger,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Watching %s\n", ui.RenderAccent(ui.IconInfo), cfg.SourcePath)
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("Press Ctrl+C to stop..."))

		if err := watcher.Start(ctx); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nStopped after %d runs\n", watcher.Runs())
		return nil
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", daemon.DefaultDebounceInterval, "Quiet period after the last change before running")
	watchCmd.Flags().Int("concurrency", tagsync.DefaultConcurrency, "Concurrent Danbooru lookups")
	watchCmd.Flags().Bool("conservative", false, "Check one tag at a time")
	watchCmd.Flags().Bool("ugoira-as-webp", false, "Match zip downloads to converted .webp files")
	watchCmd.Flags().Int("dashboard-port", 0, "Serve live progress on this port (0 disables)")
	rootCmd.AddCommand(watchCmd)
}
