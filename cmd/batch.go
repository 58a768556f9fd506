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
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/metermeter/internal/orchestrator"
	"github.com/valpere/metermeter/internal/poem"
)

var (
	batchOutDir  string
	batchWorkers int
	batchTimeout time.Duration
	batchPretty  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Scan many poems concurrently",
	Long: `Scan every poem file concurrently and write <name>.scan.json for each
into the output directory, then print a summary table. Poems sharing a file
name are named after their relative path, e.g. a_sonnet.scan.json.

Workers and the per-poem timeout default to batch.workers and batch.timeout
from the configuration.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var jobs []orchestrator.Job
		names := outputNames(args)
		for i, path := range args {
			p, err := poem.Load(path)
			if err != nil {
				return err
			}
			req := p.Request()
			req.LLM = cfg.LLMOptions()
			jobs = append(jobs, orchestrator.Job{Name: names[i], Request: req})
		}

		workers := cfg.Batch.Workers
		if cmd.Flags().Changed("workers") {
			workers = batchWorkers
		}
		timeout := cfg.Batch.Timeout
		if cmd.Flags().Changed("timeout") {
			timeout = batchTimeout
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := os.MkdirAll(batchOutDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Scanning %d poems with %d workers...\n", len(jobs), workers)
		orch := orchestrator.New(a.service, orchestrator.OrchestratorConfig{
			Workers: workers,
			Timeout: timeout,
		})
		result := orch.Execute(context.Background(), jobs)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "POEM\tLINES\tDOMINANT\tRATIO\tOVERRIDES\tTIME\tSTATUS")
		for _, r := range result.Results {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
			}
			out := filepath.Join(batchOutDir, r.Name+".scan.json")
			if err := writeScanFile(out, r.Response); err != nil {
				return err
			}
			e := r.Response.Eval
			fmt.Fprintf(w, "%s\t%d\t%s\t%.2f\t%d\t%s\t%s\n",
				r.Name, e.LineCount, e.DominantMeter, e.DominantRatio,
				e.MeterOverrides, r.Duration.Round(time.Millisecond), status)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("Poems scanned: %d/%d\n", result.Succeeded, len(jobs))
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d poems failed", result.Failed, len(jobs))
		}
		return nil
	},
}

// outputNames names each poem after its file without extension. Poems whose
// names collide are named after their relative path instead, and any name
// still taken gets a numeric suffix, so no output file is written twice.
func outputNames(paths []string) []string {
	stem := func(p string) string {
		return strings.TrimSuffix(p, filepath.Ext(p))
	}
	counts := make(map[string]int, len(paths))
	for _, p := range paths {
		counts[filepath.Base(stem(p))]++
	}

	names := make([]string, len(paths))
	taken := make(map[string]bool, len(paths))
	for i, p := range paths {
		name := filepath.Base(stem(p))
		if counts[name] > 1 {
			rel := filepath.ToSlash(filepath.Clean(stem(p)))
			rel = strings.TrimLeft(strings.ReplaceAll(rel, "../", ""), "/")
			name = strings.ReplaceAll(rel, "/", "_")
		}
		for n, base := 2, name; taken[name]; n++ {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

func writeScanFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeJSON(f, v, batchPretty); err != nil {
		f.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchOutDir, "out", "o", "./scans", "Output directory")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 4, "Concurrent scans")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 2*time.Minute, "Time limit per poem")
	batchCmd.Flags().BoolVar(&batchPretty, "pretty", true, "Indent the JSON output")
}
