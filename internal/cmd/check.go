// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dotandev/stache/internal/mustache"
)

var checkJSONFlag bool

type checkReport struct {
	Template     string   `json:"template"`
	OK           bool     `json:"ok"`
	Error        string   `json:"error,omitempty"`
	Instructions int      `json:"instructions,omitempty"`
	DataBytes    int      `json:"data_bytes,omitempty"`
	Partials     []string `json:"partials,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check <template>...",
	Short: "Compile templates and report structural diagnostics",
	Long: `Compile one or more templates without rendering them. For each template the
command reports the compiled program size and every partial that was loaded,
or the compile error when the template is malformed.

Example:
  stache check page.mustache
  stache check templates/*.mustache --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reports := make([]checkReport, 0, len(args))
		failed := 0
		for _, arg := range args {
			reports = append(reports, checkOne(resolveTemplate(arg)))
			if !reports[len(reports)-1].OK {
				failed++
			}
		}

		if checkJSONFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return err
			}
		} else {
			printReports(reports)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d templates failed to compile", failed, len(args))
		}
		return nil
	},
}

func checkOne(template string) checkReport {
	report := checkReport{Template: template}
	prog, err := mustache.CompileFile(template)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.OK = true
	report.Instructions = len(prog.Instructions())
	report.DataBytes = prog.DataLen()
	for i, e := range prog.Templates() {
		if i == 0 {
			continue
		}
		report.Partials = append(report.Partials, e.Name)
	}
	return report
}

func printReports(reports []checkReport) {
	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	dim := color.New(color.Faint)

	for _, r := range reports {
		if !r.OK {
			fail.Printf("FAIL  %s\n", r.Template)
			fmt.Printf("      %s\n", r.Error)
			continue
		}
		pass.Printf("OK    %s\n", r.Template)
		dim.Printf("      %d instructions, %d data bytes\n", r.Instructions, r.DataBytes)
		for _, p := range r.Partials {
			dim.Printf("      partial: %s\n", p)
		}
	}
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSONFlag, "json", false, "Emit the report as JSON")

	rootCmd.AddCommand(checkCmd)
}
