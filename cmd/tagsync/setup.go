package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tagsync/internal/config"
	"github.com/mschirtzinger/tagsync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Write the .env file interactively",
	Long: `Ask for the database locations and write them, with the current tag colors
and sync settings, to the dotenv file (--env-file, default .env).

The form uses keyboard navigation:
  - Tab/Shift+Tab: Move between fields
  - Enter: Submit the form
  - Ctrl+C: Cancel and exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sourcePath := cfg.SourcePath
		libraryPath := cfg.LibraryPath
		ugoira := cfg.UgoiraAsWebp
		concurrency := strconv.Itoa(cfg.Concurrency)
		confirmed := true

		overwrite := ""
		if _, err := os.Stat(envFile); err == nil {
			overwrite = fmt.Sprintf("%s exists and will be replaced.", envFile)
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Danbooru downloader database").
					Description(config.KeySourcePath).
					Placeholder("/path/to/danbooru.sqlite").
					Value(&sourcePath).
					Validate(requireFile),

				huh.NewInput().
					Title("TagStudio library database").
					Description(config.KeyLibraryPath).
					Placeholder("/path/to/library/.TagStudio/ts_library.sqlite").
					Value(&libraryPath).
					Validate(requireFile),
			),

			huh.NewGroup(
				huh.NewConfirm().
					Title("Ugoira downloads were converted to WebP?").
					Value(&ugoira),

				huh.NewInput().
					Title("Concurrent Danbooru lookups").
					Value(&concurrency).
					Validate(func(s string) error {
						n, err := strconv.Atoi(strings.TrimSpace(s))
						if err != nil || n < 1 {
							return fmt.Errorf("enter a number of at least 1")
						}
						return nil
					}),

				huh.NewConfirm().
					Title("Write settings?").
					Description(overwrite).
					Affirmative("Write").
					Negative("Cancel").
					Value(&confirmed),
			),
		).WithTheme(huh.ThemeDracula())

		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Setup cancelled.")
				return nil
			}
			return fmt.Errorf("form error: %w", err)
		}
		if !confirmed {
			fmt.Fprintln(cmd.ErrOrStderr(), "Setup cancelled.")
			return nil
		}

		values := cfg.EnvValues()
		values[config.KeySourcePath] = strings.TrimSpace(sourcePath)
		values[config.KeyLibraryPath] = strings.TrimSpace(libraryPath)
		values[config.KeyUgoiraAsWebp] = strconv.FormatBool(ugoira)
		values[config.KeyConcurrency] = strings.TrimSpace(concurrency)

		if err := config.WriteEnvFile(envFile, values); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", ui.RenderPass(ui.IconPass), envFile)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return err
		}

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s %v\n", ui.RenderWarn(ui.IconWarn), err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
}

func requireFile(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("a path is required")
	}
	info, err := os.Stat(s)
	if err != nil {
		return fmt.Errorf("cannot read %s", s)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", s)
	}
	return nil
}
