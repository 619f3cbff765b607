// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/notetagger/internal/store"
	"github.com/pdiddy/notetagger/pkg/types"
)

var annotationsCmd = &cobra.Command{
	Use:   "annotations",
	Short: "Manage the annotation store (store, retrieve, export)",
	Long: `Annotations manages a local SQLite store built from enrichment
output. Use subcommands to index enriched records, query them, or
export.`,
}

// --- store subcommand ---

var annotationsStoreCmd = &cobra.Command{
	Use:   "store [file]",
	Short: "Ingest enriched JSONL records into the annotation store",
	Long: `Store reads enriched JSONL from a file or stdin and indexes each
record's annotation payload in a SQLite database with FTS5 over matched
sentences. Records without a payload are counted and skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnnotationsStore,
}

func runAnnotationsStore(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	in := io.Reader(os.Stdin)
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	summary, err := s.Ingest(cmd.Context(), in, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d record(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- retrieve subcommand ---

var annotationsRetrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Query the annotation store with full-text search and filters",
	Long: `Retrieve searches stored annotations using FTS5 full-text search over
matched sentences, structured filters (concept code, certainty, record
identity), or a combination of both.`,
	RunE: runAnnotationsRetrieve,
}

func runAnnotationsRetrieve(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --code, --certainty, or --record")
	}

	results, err := s.Retrieve(cmd.Context(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatRetrieveOutput(results, jsonOutput)
}

func formatRetrieveOutput(results []store.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-12s  %-10s  %-20s  %-10s  %s\n",
		"Rank", "Code", "Certainty", "Matched", "Record", "Sentence")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for i, r := range results {
		matched := r.MatchedText
		if len(matched) > 20 {
			matched = matched[:17] + "..."
		}
		recordID := r.RecordID
		if len(recordID) > 10 {
			recordID = recordID[:7] + "..."
		}
		sentence := r.MatchedSentence
		if len(sentence) > 40 {
			sentence = sentence[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-12s  %-10s  %-20s  %-10s  %s\n",
			i+1, r.ConceptCode, r.Certainty, matched, recordID, sentence)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- export subcommand ---

var annotationsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored annotations to YAML or JSON",
	Long: `Export writes the full annotation store (or a filtered subset) to
stdout or a file. Supports the same filter flags as retrieve for
partial exports.`,
	RunE: runAnnotationsExport,
}

func runAnnotationsExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	out := io.Writer(os.Stdout)
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	opts := queryOptsFromFlags(cmd, args)
	return s.Export(cmd.Context(), out, format, opts)
}

// --- shared helpers ---

func openStore(cmd *cobra.Command) (*store.Store, error) {
	annotationsDir, _ := cmd.Flags().GetString("annotations-dir")
	if annotationsDir == "" {
		annotationsDir = "annotations"
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")

	return store.NewStore(types.AnnotationStoreConfig{
		AnnotationsDir: annotationsDir,
		MaxResults:     maxResults,
	})
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) store.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	code, _ := cmd.Flags().GetString("code")
	certainty, _ := cmd.Flags().GetString("certainty")
	recordID, _ := cmd.Flags().GetString("record")
	limit, _ := cmd.Flags().GetInt("limit")

	return store.QueryOptions{
		Query:      queryText,
		Code:       code,
		Certainty:  types.Certainty(certainty),
		RecordID:   recordID,
		MaxResults: limit,
	}
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	annotationsCmd.PersistentFlags().String("annotations-dir", "annotations", "base directory for the annotation store (contains index/)")
	annotationsCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")

	// Retrieve flags.
	annotationsRetrieveCmd.Flags().String("query", "", "full-text search over matched sentences")
	annotationsRetrieveCmd.Flags().String("code", "", "filter by concept code")
	annotationsRetrieveCmd.Flags().String("certainty", "", "filter by certainty: positive, negative, possible")
	annotationsRetrieveCmd.Flags().String("record", "", "filter by source record identity")
	annotationsRetrieveCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	annotationsRetrieveCmd.Flags().Bool("json", false, "output results as JSON")

	// Export flags.
	annotationsExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	annotationsExportCmd.Flags().String("out", "", "export file (default: stdout)")
	annotationsExportCmd.Flags().String("query", "", "full-text search filter for partial export")
	annotationsExportCmd.Flags().String("code", "", "filter by concept code for partial export")
	annotationsExportCmd.Flags().String("certainty", "", "filter by certainty for partial export")
	annotationsExportCmd.Flags().String("record", "", "filter by record identity for partial export")
	annotationsExportCmd.Flags().Int("limit", 0, "maximum annotations to export (0 = all)")

	// Wire subcommands.
	annotationsCmd.AddCommand(annotationsStoreCmd)
	annotationsCmd.AddCommand(annotationsRetrieveCmd)
	annotationsCmd.AddCommand(annotationsExportCmd)

	rootCmd.AddCommand(annotationsCmd)
}
