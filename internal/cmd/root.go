// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dotandev/stache/internal/config"
	"github.com/dotandev/stache/internal/logger"
	"github.com/dotandev/stache/internal/updater"
)

// Global flag variables
var (
	logLevelFlag  string
	logFormatFlag string
)

// cfg is loaded once before any command runs.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stache",
	Short: "Mustache template compiler and renderer",
	Long: `Stache compiles Mustache templates (including partials) into flat
instruction programs once and renders them many times.

Key features:
  - Compile-once/render-many: programs are immutable and safe to share
  - Partials resolved relative to the referring template, with deduplication
  - Compiled program caching for repeated renders of unchanged sources
  - Render history for auditing template usage
  - JSON-RPC daemon for serving renders to other tools

Examples:
  stache render page.mustache --data page.json   Render a template
  stache check page.mustache                     Compile and report diagnostics
  stache daemon --port 8080 --root ./templates   Serve renders over JSON-RPC
  stache cache status                            Check compiled-program cache`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if logLevelFlag != "" {
			level = logLevelFlag
		}
		format := logger.Format(cfg.LogFormat)
		if logFormatFlag != "" {
			format = logger.Format(logFormatFlag)
		}
		logger.Init(logger.ParseLevel(level), format, os.Stderr)

		// Check for updates asynchronously (non-blocking)
		go updater.NewChecker(Version).CheckForUpdates()

		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format (text, json)")
}
