// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/notetagger/internal/engine"
	"github.com/pdiddy/notetagger/internal/enrich"
	"github.com/pdiddy/notetagger/pkg/types"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Annotate JSONL note records with a rule bundle",
	Long: `Enrich reads JSONL records, analyzes the configured text field of
each record, and writes one output record per discovered concept. Each
output record carries the input fields in order plus an appended
nlp_output_json field.

Workers run in parallel, each with its own engine instance. Records
whose analysis fails are skipped and logged; a missing text field or an
unreadable input line aborts the run.`,
	RunE: runEnrich,
}

func runEnrich(cmd *cobra.Command, args []string) error {
	engineCfg, err := engineConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	enrichCfg := enrichmentConfigFromFlags(cmd)

	in, out := io.Reader(os.Stdin), io.Writer(os.Stdout)
	if path, _ := cmd.Flags().GetString("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		out = f
	}

	factory := func(ctx context.Context) (engine.Engine, error) {
		return engine.New(ctx, engineCfg)
	}

	_, err = enrich.EnrichAll(cmd.Context(), factory, enrichCfg, in, out, os.Stderr)
	return err
}

// enrichmentConfigFromFlags resolves the enrichment settings: an
// explicit flag wins, then the config file, then the built-in default.
// The flags are registered with empty defaults so an unset flag is
// distinguishable from a configured value.
func enrichmentConfigFromFlags(cmd *cobra.Command) types.EnrichmentConfig {
	inputField, _ := cmd.Flags().GetString("input-field")
	if inputField == "" {
		inputField = viper.GetString("enrichment.input")
	}
	if inputField == "" {
		inputField = "note_text"
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers == 0 {
		workers = viper.GetInt("enrichment.workers")
	}

	return types.EnrichmentConfig{
		InputField: inputField,
		Workers:    workers,
	}
}

// engineConfigFromFlags builds the engine configuration, falling back
// to config-file values for flags left unset.
func engineConfigFromFlags(cmd *cobra.Command) (types.EngineConfig, error) {
	ruleset, _ := cmd.Flags().GetString("ruleset")
	if ruleset == "" {
		ruleset = viper.GetString("engine.ruleset")
	}
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	if cacheDir == "" {
		cacheDir = viper.GetString("engine.cache_dir")
	}
	maxDocBytes, _ := cmd.Flags().GetInt("max-doc-bytes")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg := types.EngineConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: "notetagger/" + version,
			AuthToken: secretDefault("ruleset-token", viper.GetString("engine.ruleset_token")),
		},
		Ruleset:     ruleset,
		CacheDir:    cacheDir,
		MaxDocBytes: maxDocBytes,
	}
	if err := cfg.Validate(); err != nil {
		return types.EngineConfig{}, err
	}
	return cfg, nil
}

func init() {
	enrichCmd.Flags().String("input", "", "input JSONL file (default: stdin)")
	enrichCmd.Flags().String("output", "", "output JSONL file (default: stdout)")
	enrichCmd.Flags().String("input-field", "", "record field holding the text to analyze (default: note_text)")
	enrichCmd.Flags().Int("workers", 0, "number of parallel workers, one engine each (default: 1)")
	enrichCmd.Flags().String("ruleset", "", "rule bundle: directory, .zip archive, or http(s) URL")
	enrichCmd.Flags().String("cache-dir", "", "directory for unpacked rule bundles (default: system temp)")
	enrichCmd.Flags().Int("max-doc-bytes", 0, "document size cap in bytes (0 = 1 MiB default)")
	enrichCmd.Flags().Duration("timeout", 30*time.Second, "HTTP timeout for remote ruleset fetches")

	rootCmd.AddCommand(enrichCmd)
}
