package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tagsync/internal/config"
	"github.com/mschirtzinger/tagsync/internal/logging"
	"github.com/mschirtzinger/tagsync/internal/ui"
)

var (
	envFile  string
	noColor  bool
	jsonLogs bool

	cfg    *config.Config
	logger *logging.Logger
)

// flagKeys binds command-line flags to configuration keys. A flag only
// overrides the key when it was set on the command line.
var flagKeys = map[string]string{
	"source":         config.KeySourcePath,
	"library":        config.KeyLibraryPath,
	"log-level":      config.KeyLogLevel,
	"log-file":       config.KeyLogFile,
	"concurrency":    config.KeyConcurrency,
	"ugoira-as-webp": config.KeyUgoiraAsWebp,
	"debounce":       config.KeyDebounceInterval,
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "sync", Title: "Sync & Data:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
	rootCmd.AddGroup(&cobra.Group{ID: "advanced", Title: "Integrations & Advanced:"})

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Dotenv file to read settings from")
	rootCmd.PersistentFlags().String("source", "", "Danbooru downloader database (overrides "+config.KeySourcePath+")")
	rootCmd.PersistentFlags().String("library", "", "TagStudio library database (overrides "+config.KeyLibraryPath+")")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file, rotated by size")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

var rootCmd = &cobra.Command{
	Use:   "tagsync",
	Short: "tagsync - Danbooru tags and implications for TagStudio",
	Long: `Copy tags from a Danbooru downloader database into a TagStudio library,
then mirror Danbooru's tag implications as TagStudio parent tags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Setup(noColor)

		loader := config.NewLoader(envFile)
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := loader.BindFlag(key, f); err != nil {
					return err
				}
			}
		}

		var err error
		cfg, err = loader.Load()
		if err != nil {
			return err
		}

		logger, err = logging.New(logging.Options{
			Level: cfg.LogLevel,
			JSON:  jsonLogs,
			File:  cfg.LogFile,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", config.KeyLogLevel, err)
		}
		slog.SetDefault(logger.Logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s Error: %v\n", ui.RenderFail(ui.IconFail), err)
		os.Exit(1)
	}
}
