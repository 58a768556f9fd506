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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/metermeter/internal"
)

var (
	scanInput  string
	scanOutput string
	scanPretty bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a JSON request",
	Long: `Read a scan request as JSON and write the scan response as JSON.

The request is read from --input or stdin:

  {"lines": [{"lnum": 1, "text": "..."}],
   "context": {"dominant_meter": "iambic pentameter"},
   "llm": {"enabled": true, "endpoint": "...", "model": "...", "max_lines_per_scan": 64}}

When the request carries no "llm" block and LLM refinement is enabled in the
configuration, the configured options are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if scanInput != "" && scanInput != "-" {
			f, err := os.Open(scanInput)
			if err != nil {
				return fmt.Errorf("failed to open input file: %w", err)
			}
			defer f.Close()
			in = f
		}

		var req internal.ScanRequest
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			return fmt.Errorf("failed to decode scan request: %w", err)
		}
		if req.LLM == nil {
			req.LLM = cfg.LLMOptions()
		}
		if req.Source == "" {
			req.Source = scanInput
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		resp := a.service.Scan(context.Background(), req)

		var out io.Writer = os.Stdout
		if scanOutput != "" && scanOutput != "-" {
			f, err := os.Create(scanOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := writeJSON(out, resp, scanPretty); err != nil {
			return fmt.Errorf("failed to write scan response: %w", err)
		}
		if resp.Error != "" {
			fmt.Fprintf(os.Stderr, "Scan error: %s\n", resp.Error)
		}
		return nil
	},
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanInput, "input", "i", "", "Request file (default stdin)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Response file (default stdout)")
	scanCmd.Flags().BoolVar(&scanPretty, "pretty", false, "Indent the JSON response")
}
