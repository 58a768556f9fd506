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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListScanRuns(context.Background(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list scans: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No scans recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWHEN\tSOURCE\tLINES\tRESULTS\tDOMINANT\tLLM\tERROR")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%v\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Source,
				r.LineCount, r.ResultCount, r.DominantMeter, r.LLMUsed, r.Error)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		r, err := db.GetScanRun(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get scan: %w", err)
		}

		fmt.Printf("ID:              %s\n", r.ID)
		fmt.Printf("Recorded:        %s\n", r.CreatedAt.Format(time.RFC3339))
		fmt.Printf("Source:          %s\n", r.Source)
		fmt.Printf("Lines:           %d\n", r.LineCount)
		fmt.Printf("Results:         %d\n", r.ResultCount)
		fmt.Printf("Meter overrides: %d\n", r.MeterOverrides)
		fmt.Printf("Dominant meter:  %s (%.2f)\n", r.DominantMeter, r.DominantRatio)
		fmt.Printf("LLM used:        %v\n", r.LLMUsed)
		fmt.Printf("Duration:        %s\n", r.Duration)
		if r.Error != "" {
			fmt.Printf("Error:           %s\n", r.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of scans to show (0 for all)")

	historyCmd.AddCommand(historyShowCmd)
}
