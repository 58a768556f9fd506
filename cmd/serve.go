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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/metermeter/internal"
)

// maxRequestBytes bounds one request line on stdin.
const maxRequestBytes = 16 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer scan requests on stdin, one JSON object per line",
	Long: `Run as a long-lived helper process for an editor or another program.

Each line of stdin is a scan request; each line of stdout is its response.
The LLM cache and error cooldown are kept for the life of the process. A
request that cannot be decoded is answered with an error response.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		in := bufio.NewScanner(os.Stdin)
		in.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()

		logger.Info("serving scan requests on stdin")
		for in.Scan() {
			if ctx.Err() != nil {
				break
			}
			line := strings.TrimSpace(in.Text())
			if line == "" {
				continue
			}

			var resp internal.ScanResponse
			var req internal.ScanRequest
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				logger.Warn("invalid scan request", zap.Error(err))
				resp = internal.ScanResponse{
					Results: []internal.ScanResult{},
					Error:   "invalid_request: " + err.Error(),
				}
			} else {
				if req.LLM == nil {
					req.LLM = cfg.LLMOptions()
				}
				if req.Source == "" {
					req.Source = "serve"
				}
				resp = a.service.Scan(ctx, req)
			}

			if err := writeJSON(out, resp, false); err != nil {
				return fmt.Errorf("failed to write scan response: %w", err)
			}
			if err := out.Flush(); err != nil {
				return fmt.Errorf("failed to flush scan response: %w", err)
			}
		}
		if err := in.Err(); err != nil {
			return fmt.Errorf("failed to read requests: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
