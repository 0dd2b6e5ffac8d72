// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/stache/internal/mustache"
)

// Version is the CLI version, overridden at build time via -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stache %s (engine %s)\n", Version, mustache.EngineVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
