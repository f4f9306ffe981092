package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/healthtwin/display"
	"github.com/teranos/healthtwin/logger"
	"github.com/teranos/healthtwin/reasoning"
	"github.com/teranos/healthtwin/sym"
	"github.com/teranos/healthtwin/twin"
)

// ContextCmd renders the reasoning context of a twin
var ContextCmd = &cobra.Command{
	Use:   "context <user>",
	Short: sym.Short("context", "Render a token-budgeted summary for a language model"),
	Long: sym.Context + ` context — Reasoning context for a language model

Renders demographics, biomarkers with reference status and trend, and the
other domains as markdown. When the text exceeds the budget, older history
goes first, then secondary domains, then the oldest primary entries. The
completeness summary is always kept.

Examples:
  twin context alice
  twin context alice --max-tokens 400 --domain biomarkers
  twin context alice --snapshot 6f1c... --json`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

var (
	contextMaxTokens int
	contextDomains   []string
	contextSnapshot  string
)

func init() {
	ContextCmd.Flags().IntVar(&contextMaxTokens, "max-tokens", 0, "Token budget (default reasoning.max_tokens)")
	ContextCmd.Flags().StringSliceVar(&contextDomains, "domain", nil, "Only render these domains (repeatable)")
	ContextCmd.Flags().StringVar(&contextSnapshot, "snapshot", "", "Render a saved snapshot instead of the current twin")
}

func runContext(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	var t *twin.Twin
	if contextSnapshot != "" {
		t, err = s.LoadSnapshot(cmd.Context(), contextSnapshot)
	} else {
		t, err = s.Load(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	gen := reasoning.NewGenerator(t, a.registry,
		reasoning.WithConfig(a.cfg.Reasoning.GeneratorConfig()),
		reasoning.WithLogger(logger.ComponentLogger(logger.ComponentReasoning)))
	result := gen.Generate(contextMaxTokens, contextDomains...)

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Text)
	if result.Truncated {
		pterm.Info.WithWriter(cmd.ErrOrStderr()).Printfln("truncated to %d/%d tokens (%d entries dropped)",
			result.Tokens, result.MaxTokens, result.DroppedUnits)
	}
	return nil
}
