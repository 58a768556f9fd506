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
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/metermeter/internal/refiner"
	"github.com/valpere/metermeter/internal/validator"
)

var (
	cacheModel string
	cacheLine  string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the LLM refinement cache",
	Long:  `List, inspect, and clear the SQLite cache of validated LLM refinements.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached refinements",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListCache(context.Background(), cacheModel)
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries in the LLM cache.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tMODEL\tPROMPT\tMETER\tUSED\tLAST USED\tTEXT")
		for _, e := range entries {
			meterName := "?"
			var ref validator.Refinement
			if json.Unmarshal(e.Payload, &ref) == nil {
				meterName = ref.MeterName
			}
			snippet := []rune(e.LineText)
			if len(snippet) > 40 {
				snippet = append(snippet[:37], []rune("...")...)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				e.Key, e.Model, e.PromptVersion, meterName,
				e.UsageCount, e.LastUsed.Format("2006-01-02 15:04"), string(snippet))
		}
		return w.Flush()
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show LLM cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total entries: %d\n", stats.TotalEntries)
		fmt.Printf("Models:        %d\n", stats.Models)
		fmt.Printf("Total usage:   %d\n", stats.TotalUsage)
		return nil
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Delete a cached refinement by key or by line text",
	Long: `Delete a cached refinement. Give its key as listed by "cache list", or
the line text with --line; the key is then derived from the configured
model and prompt version.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		switch {
		case len(args) == 1:
			key = args[0]
		case cacheLine != "":
			model := cfg.LLM.Model
			if cacheModel != "" {
				model = cacheModel
			}
			key = refiner.CacheKey(cfg.LLM.PromptVersion, model, cacheLine)
		default:
			return fmt.Errorf("either a key or --line is required")
		}

		db, err := openDB(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteCached(context.Background(), key); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		fmt.Printf("Deleted entry: %s\n", key)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached refinements",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearCache(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Printf("Cleared %d entries from the LLM cache.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.PersistentFlags().StringVar(&cacheModel, "model", "", "Only entries for this model")
	cacheDeleteCmd.Flags().StringVar(&cacheLine, "line", "", "Line text whose entry to delete")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
