package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/healthtwin/display"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
	"github.com/teranos/healthtwin/sym"
	"github.com/teranos/healthtwin/validation"
)

// ValidateCmd checks one candidate biomarker observation
var ValidateCmd = &cobra.Command{
	Use:   "validate <biomarker> <value>",
	Short: sym.Short("check", "Check a biomarker value against the registry"),
	Long: sym.Check + ` validate — Check a biomarker value without storing it

Outside the reference range is a warning; outside the plausible range, a unit
that differs from the standard unit, or a future timestamp is an error.

Examples:
  twin validate ldl_cholesterol 162 --unit mg/dL
  twin validate testosterone 310 --unit ng/dL --sex male --age 61`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

// CheckCmd validates a stored twin
var CheckCmd = &cobra.Command{
	Use:   "check <user>",
	Short: sym.Short("check", "Validate every field of a stored twin"),
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var (
	validateUnit string
	validateAge  float64
	validateSex  string
	validateAt   string
)

func init() {
	ValidateCmd.Flags().StringVar(&validateUnit, "unit", "", "Unit of the value (required)")
	ValidateCmd.Flags().Float64Var(&validateAge, "age", 0, "Age in years")
	ValidateCmd.Flags().StringVar(&validateSex, "sex", "", "Sex (male or female)")
	ValidateCmd.Flags().StringVar(&validateAt, "at", "", "Observation time (default now)")
}

func (a *app) validator() *validation.Validator {
	return validation.New(a.registry,
		validation.WithConfig(a.cfg.Validation.ValidatorConfig()),
		validation.WithLogger(logger.ComponentLogger(logger.ComponentValidator)))
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidBiomarkerValue, "%q is not a number", args[1])
	}
	ts, err := parseTimeFlag("at", validateAt)
	if err != nil {
		return err
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res := a.validator().ValidateDataPoint(args[0], value, validateUnit, ageFlag(cmd, validateAge), validateSex, ts)
	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		return res.Err()
	}
	printResult(cmd.OutOrStdout(), args[0], res)
	return res.Err()
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	t, err := s.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	res := a.validator().ValidateTwin(t)
	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		return res.Err()
	}
	printResult(cmd.OutOrStdout(), args[0], res)
	return res.Err()
}

// printResult writes one line per issue, errors first.
func printResult(w io.Writer, subject string, res validation.Result) {
	for _, issue := range res.Errors {
		fmt.Fprintf(w, "%s %s\n", pterm.Red("✗"), issue)
	}
	for _, issue := range res.Warnings {
		fmt.Fprintf(w, "%s %s\n", pterm.Yellow("!"), issue)
	}
	if res.IsValid {
		fmt.Fprintf(w, "%s %s is valid (%d warnings)\n", pterm.Green(sym.Normal), subject, len(res.Warnings))
	}
}
