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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dotandev/stache/internal/cache"
	"github.com/dotandev/stache/internal/errors"
	"github.com/dotandev/stache/internal/logger"
	"github.com/dotandev/stache/internal/mustache"
	"github.com/dotandev/stache/internal/render"
	"github.com/dotandev/stache/internal/store"
)

var (
	renderDataFlag  string
	renderOutFlag   string
	renderCacheFlag bool
	renderStatsFlag bool
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Compile a template and render it against a JSON data document",
	Long: `Compile a Mustache template (loading any referenced partials) and render it
against a JSON data document.

With --cache, the compiled program is stored in the program cache keyed by the
source hash, so repeated renders of an unchanged template skip compilation.

Example:
  stache render page.mustache --data page.json
  stache render page.mustache --data page.json --cache --out page.html`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	template := resolveTemplate(args[0])

	var data []byte
	if renderDataFlag != "" {
		var err error
		data, err = os.ReadFile(renderDataFlag)
		if err != nil {
			return errors.WrapDataError(err)
		}
	}

	started := time.Now()
	prog, hit, key, err := compileMaybeCached(template, renderCacheFlag)
	if err != nil {
		recordRender(template, key, "compile_error", err, started, 0, false)
		return err
	}

	out, err := render.RenderJSON(prog, data)
	if err != nil {
		recordRender(template, key, "render_error", err, started, 0, hit)
		return errors.WrapRenderFailed(template, err)
	}
	recordRender(template, key, "ok", nil, started, int64(len(out)), hit)

	if renderOutFlag != "" {
		if err := os.WriteFile(renderOutFlag, []byte(out), 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else {
		fmt.Print(out)
	}

	if renderStatsFlag {
		source := "compiled"
		if hit {
			source = "cache hit"
		}
		color.New(color.FgGreen).Fprintf(os.Stderr, "rendered %s: %d bytes in %s (%s)\n",
			template, len(out), time.Since(started).Round(time.Microsecond), source)
	}
	return nil
}

// resolveTemplate anchors relative template paths under the configured root.
func resolveTemplate(name string) string {
	if cfg == nil || cfg.TemplateRoot == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.TemplateRoot, name)
}

// compileMaybeCached consults the program cache before compiling.
func compileMaybeCached(template string, cached bool) (*mustache.Program, bool, string, error) {
	if !cached {
		prog, err := mustache.CompileFile(template)
		return prog, false, "", err
	}
	src, err := os.ReadFile(template)
	if err != nil {
		return nil, false, "", fmt.Errorf("%w: %s: %v", mustache.ErrFileNotFound, template, err)
	}
	key := cache.Key(src)
	mgr := cache.NewManager(cfg.CachePath, cfg.CacheMaxBytes)
	if prog, ok := mgr.Load(key); ok {
		return prog, true, key, nil
	}
	prog, err := mustache.CompileFile(template)
	if err != nil {
		return nil, false, key, err
	}
	if err := mgr.Store(key, prog); err != nil {
		logger.Logger.Warn("Failed to cache compiled program", "template", template, "error", err)
	}
	return prog, false, key, nil
}

// recordRender appends to the sqlite history when it is enabled.
func recordRender(template, key, status string, cause error, started time.Time, bytesOut int64, cached bool) {
	if cfg == nil || !cfg.History {
		return
	}
	db, err := store.Open(cfg.HistoryPath)
	if err != nil {
		logger.Logger.Warn("Failed to open history store", "error", err)
		return
	}
	defer db.Close()

	rec := &store.Render{
		Template:   template,
		SourceHash: key,
		Status:     status,
		DurationMS: time.Since(started).Milliseconds(),
		BytesOut:   bytesOut,
		Cached:     cached,
	}
	if cause != nil {
		rec.ErrorMsg = cause.Error()
	}
	if err := db.Save(rec); err != nil {
		logger.Logger.Warn("Failed to record render", "error", err)
	}
}

func init() {
	renderCmd.Flags().StringVarP(&renderDataFlag, "data", "d", "", "JSON data document to render against")
	renderCmd.Flags().StringVarP(&renderOutFlag, "out", "o", "", "Write output to a file instead of stdout")
	renderCmd.Flags().BoolVar(&renderCacheFlag, "cache", false, "Reuse compiled programs from the program cache")
	renderCmd.Flags().BoolVar(&renderStatsFlag, "stats", false, "Print render statistics to stderr")

	rootCmd.AddCommand(renderCmd)
}
