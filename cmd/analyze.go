/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/metermeter/internal"
	"github.com/valpere/metermeter/internal/detector"
	"github.com/valpere/metermeter/internal/poem"
)

var (
	analyzeLines    []string
	analyzeDominant string
	analyzeNoDetect bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file...]",
	Short: "Scan poems and print a table of meters",
	Long: `Scan poem files (plain text or Markdown), lines given with --line, or
stdin, and print one row per line with its meter, confidence and stress.

Text that does not read as English is scanned anyway, with a warning.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		poems, err := analyzeInputs(args)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		var det *detector.Detector
		if !analyzeNoDetect {
			det = detector.New()
		}

		ctx := context.Background()
		for i, p := range poems {
			if det != nil {
				if ok, lang := det.IsEnglish(p.Text()); !ok {
					fmt.Fprintf(os.Stderr, "Warning: %s looks like %s, scansion assumes English\n", p.Name, lang)
				}
			}

			req := p.Request()
			req.LLM = cfg.LLMOptions()
			if analyzeDominant != "" {
				req.Context = &internal.ScanContext{DominantMeter: analyzeDominant}
			}
			resp := a.service.Scan(ctx, req)

			if i > 0 {
				fmt.Println()
			}
			if len(poems) > 1 {
				fmt.Printf("== %s ==\n", p.Name)
			}
			if resp.Error != "" {
				fmt.Fprintf(os.Stderr, "Scan error: %s\n", resp.Error)
			}
			if err := printResults(os.Stdout, resp); err != nil {
				return err
			}
		}
		return nil
	},
}

func analyzeInputs(args []string) ([]*poem.Poem, error) {
	var poems []*poem.Poem
	if len(analyzeLines) > 0 {
		poems = append(poems, poem.Parse("lines", strings.Join(analyzeLines, "\n")))
	}
	for _, path := range args {
		p, err := poem.Load(path)
		if err != nil {
			return nil, err
		}
		poems = append(poems, p)
	}
	if len(poems) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		poems = append(poems, poem.Parse("stdin", string(data)))
	}
	return poems, nil
}

func printResults(out io.Writer, resp internal.ScanResponse) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tMETER\tCONF\tSTRESS\tNOTE\tTEXT")
	for _, r := range resp.Results {
		note := r.OverrideReason
		if r.AnalysisHint != "" {
			note = strings.TrimSpace(note + " " + r.AnalysisHint)
		}
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%s\t%s\n",
			r.LNum, r.MeterName, r.Confidence,
			strings.Join(r.TokenPatterns, " "), note, r.Text)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	e := resp.Eval
	fmt.Fprintf(out, "Lines: %d  Results: %d  Overrides: %d  Repairs: %d\n",
		e.LineCount, e.ResultCount, e.MeterOverrides, e.TokenRepairs)
	if e.DominantMeter != "" {
		fmt.Fprintf(out, "Dominant meter: %s (%.0f%% of %d lines)\n",
			e.DominantMeter, e.DominantRatio*100, e.DominantLineCount)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringArrayVarP(&analyzeLines, "line", "l", nil, "Line of verse to scan (repeatable)")
	analyzeCmd.Flags().StringVar(&analyzeDominant, "dominant", "", "Dominant meter of the poem, e.g. \"iambic pentameter\"")
	analyzeCmd.Flags().BoolVar(&analyzeNoDetect, "no-detect", false, "Skip the English language check")
}
