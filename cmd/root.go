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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/valpere/metermeter/internal/config"
	"github.com/valpere/metermeter/internal/logging"
)

var version = "0.3.0"

var (
	cfgFile string

	v      = viper.New()
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "metermeter",
	Short: "Scansion of English verse",
	Long: `A CLI application that scans English verse: it finds the stressed
syllables of every line and names the meter, optionally asking an LLM to
check and repair the deterministic reading.

Settings come from flags, METERMETER_* environment variables, a .env file
and metermeter.yaml, in that order of precedence.

Use "metermeter scan --help" for the JSON scan interface.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		l, err := logging.New(loaded.Log.Level, loaded.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		cfg, logger = loaded, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./metermeter.yaml or $HOME/.metermeter/metermeter.yaml)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console, json)")
	pf.String("db", "./data/metermeter.db", "Database path for the LLM cache and scan history")
	pf.Bool("no-db", false, "Disable the database")
	pf.String("lexicon", "", "Pronunciation dictionary (JSON or gzip JSON)")
	pf.String("extra-lexicon", "", "Extra lexicon overriding every other source")
	pf.Bool("llm", false, "Refine scans with an LLM")
	pf.String("llm-endpoint", "", "OpenAI-compatible chat endpoint")
	pf.String("llm-model", "", "LLM model name")

	for key, flag := range map[string]string{
		"log.level":          "log-level",
		"log.format":         "log-format",
		"db.path":            "db",
		"db.disabled":        "no-db",
		"lexicon.path":       "lexicon",
		"lexicon.extra_path": "extra-lexicon",
		"llm.enabled":        "llm",
		"llm.endpoint":       "llm-endpoint",
		"llm.model":          "llm-model",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
