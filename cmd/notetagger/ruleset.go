package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/notetagger/internal/engine"
	"github.com/pdiddy/notetagger/pkg/types"
)

var rulesetCmd = &cobra.Command{
	Use:   "ruleset",
	Short: "Validate and inspect rule bundles",
}

var rulesetValidateCmd = &cobra.Command{
	Use:   "validate <location>",
	Short: "Compile a rule bundle and report its contents",
	Long: `Validate resolves a rule bundle (directory, .zip archive, or http(s)
URL), compiles every rule, and reports what it found. A malformed file,
an uncompilable pattern, or an unknown trigger type fails validation.`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesetValidate,
}

func runRulesetValidate(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	cfg := types.EngineConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: "notetagger/" + version,
			AuthToken: secretDefault("ruleset-token", ""),
		},
		Ruleset: args[0],
	}

	dir, err := engine.Resolve(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	rs, err := engine.LoadRuleset(dir)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "ruleset ok: %d concepts, %d sections, %d context triggers\n",
		len(rs.Concepts), len(rs.Sections), len(rs.Triggers))

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		for _, c := range rs.Concepts {
			fmt.Fprintf(os.Stdout, "  concept %s: %d patterns\n", c.Code, len(c.Patterns))
		}
		for _, s := range rs.Sections {
			fmt.Fprintf(os.Stdout, "  section %s\n", s.ID)
		}
		for _, tr := range rs.Triggers {
			fmt.Fprintf(os.Stdout, "  trigger %s: %d patterns\n", tr.Type, len(tr.Patterns))
		}
	}
	return nil
}

func init() {
	rulesetValidateCmd.Flags().Duration("timeout", 30*time.Second, "HTTP timeout for remote bundles")
	rulesetValidateCmd.Flags().Bool("verbose", false, "list every compiled rule")

	rulesetCmd.AddCommand(rulesetValidateCmd)
	rootCmd.AddCommand(rulesetCmd)
}
