// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/stache/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the compiled program cache",
	Long: `Manage the local cache of compiled template programs. Caching skips
compilation when a template's source bytes are unchanged.

Cache location: ~/.stache/cache (configurable via STACHE_CACHE_DIR)

Available subcommands:
  status  - View cache size and usage statistics
  clean   - Remove old artifacts using LRU strategy
  clear   - Delete all cached programs`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := cache.NewManager(cfg.CachePath, cfg.CacheMaxBytes)

		size, err := manager.Size()
		if err != nil {
			return fmt.Errorf("failed to calculate cache size: %w", err)
		}
		files, err := manager.Files()
		if err != nil {
			return fmt.Errorf("failed to list cache files: %w", err)
		}

		fmt.Printf("Cache directory: %s\n", cfg.CachePath)
		fmt.Printf("Cache size: %s\n", formatBytes(size))
		fmt.Printf("Programs cached: %d\n", len(files))
		fmt.Printf("Maximum size: %s\n", formatBytes(cfg.CacheMaxBytes))

		if size > cfg.CacheMaxBytes {
			fmt.Println("\nCache size exceeds the limit. Run 'stache cache clean' to free space.")
		}
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove least-recently-used cache artifacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := cache.NewManager(cfg.CachePath, cfg.CacheMaxBytes)
		status, err := manager.CleanLRU()
		if err != nil {
			return fmt.Errorf("cache cleanup failed: %w", err)
		}
		fmt.Printf("Deleted %d artifacts, freed %s\n", status.FilesDeleted, formatBytes(status.SpaceFreed))
		fmt.Printf("Cache size: %s -> %s\n", formatBytes(status.OriginalSize), formatBytes(status.FinalSize))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached programs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := cache.NewManager(cfg.CachePath, cfg.CacheMaxBytes)
		if err := manager.Clear(); err != nil {
			return err
		}
		fmt.Println("Cache cleared")
		return nil
	},
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(cacheCmd)
}
