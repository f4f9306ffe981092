package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/healthtwin/am"
	"github.com/teranos/healthtwin/cmd/twin/commands"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
)

var rootCmd = &cobra.Command{
	Use:   "twin",
	Short: "twin - Personal health digital twin",
	Long: `twin - Personal health digital twin.

Keeps one structured, timestamped record of a person's health data, checks
new values against biomarker reference ranges, and renders a token-budgeted
summary for a language model.

Available commands:
  am        - Manage configuration ("I am")
  registry  - Inspect the biomarker reference table
  validate  - Check a single biomarker value
  check     - Validate a stored twin
  set/get   - Record and query values
  context   - Render the reasoning context for a twin
  import    - Load a twin document from a file
  db        - Database statistics

Examples:
  twin set alice biomarkers glucose_fasting 92 --unit mg/dL
  twin get alice biomarkers glucose_fasting --series
  twin missing alice
  twin context alice --max-tokens 800`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if verbosity > 0 {
			if err := logger.InitializeWithVerbosity(verbosity); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			logger.Debugw("verbose logging", "level", logger.LevelName(verbosity))
			if logger.ShouldLogTrace(verbosity) {
				if intro, err := am.GetConfigIntrospection(); err == nil {
					logger.Debugw("configuration sources", "counts", intro.CountBySource())
				}
			}
			return nil
		}

		cfg, err := am.Load()
		if err != nil {
			// Config errors surface in the command itself
			if err := logger.Initialize(false); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			logger.Warnw("using default logging", logger.FieldError, err)
			return nil
		}
		if err := logger.InitializeWithLevel(cfg.Log.JSON, logger.ParseLevel(cfg.Log.Level)); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output JSON instead of tables")

	commands.Register(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
