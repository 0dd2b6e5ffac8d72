// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotandev/stache/internal/daemon"
	"github.com/dotandev/stache/internal/logger"
	"github.com/dotandev/stache/internal/store"
	"github.com/dotandev/stache/internal/telemetry"
)

var (
	daemonPort      string
	daemonRoot      string
	daemonAuthToken string
	daemonTracing   bool
	daemonOTLPURL   string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start JSON-RPC server for remote template rendering",
	Long: `Start a JSON-RPC 2.0 server that exposes template rendering to other tools.

Endpoints:
  - template.TemplateRender: compile (or reuse) and render a template
  - template.TemplateCheck: compile a template and report diagnostics

Templates are only served from under the --root directory.

Example:
  stache daemon --port 8080 --root ./templates
  stache daemon --port 8080 --auth-token secret123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Initialize OpenTelemetry if enabled
		var cleanup func()
		if daemonTracing {
			var err error
			cleanup, err = telemetry.Init(ctx, telemetry.Config{
				Enabled:     true,
				ExporterURL: daemonOTLPURL,
				ServiceName: "stache-daemon",
				Version:     Version,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer cleanup()
		}

		port := daemonPort
		if port == "" {
			port = cfg.DaemonPort
		}
		token := daemonAuthToken
		if token == "" {
			token = cfg.DaemonToken
		}

		var history *store.Store
		if cfg.History {
			var err error
			history, err = store.Open(cfg.HistoryPath)
			if err != nil {
				logger.Logger.Warn("History store unavailable", "error", err)
			} else {
				defer history.Close()
			}
		}

		server, err := daemon.NewServer(daemon.Config{
			TemplateRoot: daemonRoot,
			AuthToken:    token,
			CacheDir:     cfg.CachePath,
			CacheMax:     cfg.CacheMaxBytes,
			History:      history,
		})
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Handle interrupt signals
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			fmt.Println("\nReceived interrupt signal, shutting down...")
			cancel()
		}()

		fmt.Printf("Starting stache daemon on port %s\n", port)
		fmt.Printf("Template root: %s\n", daemonRoot)
		if token != "" {
			fmt.Println("Authentication: enabled")
		}

		return server.Start(ctx, port)
	},
}

func init() {
	daemonCmd.Flags().StringVarP(&daemonPort, "port", "p", "", "Port to listen on")
	daemonCmd.Flags().StringVar(&daemonRoot, "root", ".", "Directory templates are served from")
	daemonCmd.Flags().StringVar(&daemonAuthToken, "auth-token", "", "Authentication token for API access")
	daemonCmd.Flags().BoolVar(&daemonTracing, "tracing", false, "Enable OpenTelemetry tracing")
	daemonCmd.Flags().StringVar(&daemonOTLPURL, "otlp-url", "localhost:4318", "OTLP exporter endpoint")

	rootCmd.AddCommand(daemonCmd)
}
