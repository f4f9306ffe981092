package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/healthtwin/display"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/sym"
	"github.com/teranos/healthtwin/twin"
	"github.com/teranos/healthtwin/validation"
)

// SetCmd records a value
var SetCmd = &cobra.Command{
	Use:   "set <user> <domain> <field> <value>",
	Short: sym.Short("twin", "Record a value in a twin"),
	Long: sym.Twin + ` set — Record a timestamped value

The twin is created on first use. Biomarker values are checked against the
registry: warnings are printed, errors reject the value unless --force.
Values are parsed as the field's declared type; without one, numbers and
booleans are recognised and everything else is a string.

Examples:
  twin set alice demographics age 52
  twin set alice biomarkers hdl_cholesterol 58 --unit mg/dL --at 2024-03-01
  twin set alice medical_history conditions asthma,eczema --type list`,
	Args: cobra.ExactArgs(4),
	RunE: runSet,
}

// GetCmd reads a value or its history
var GetCmd = &cobra.Command{
	Use:   "get <user> <domain> <field>",
	Short: sym.Short("twin", "Show the latest value or the history of a field"),
	Args:  cobra.ExactArgs(3),
	RunE:  runGet,
}

// MissingCmd lists fields without data
var MissingCmd = &cobra.Command{
	Use:   "missing <user> [domain]",
	Short: sym.Short("twin", "List missing fields"),
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMissing,
}

// CompletenessCmd reports per-domain completeness
var CompletenessCmd = &cobra.Command{
	Use:   "completeness <user>",
	Short: sym.Short("twin", "Show completeness per domain"),
	Args:  cobra.ExactArgs(1),
	RunE:  runCompleteness,
}

// MarkCmd sets a field's state explicitly
var MarkCmd = &cobra.Command{
	Use:   "mark <user> <domain> <field> <missing|not_applicable>",
	Short: sym.Short("twin", "Mark a field missing or not applicable"),
	Long: sym.Twin + ` mark — Set a field's state explicitly

Marking clears the field's history. Missing and not_applicable fields both
count as unpopulated in completeness.`,
	Args: cobra.ExactArgs(4),
	RunE: runMark,
}

// UsersCmd lists stored twins
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: sym.Short("twin", "List stored twins"),
	Args:  cobra.NoArgs,
	RunE:  runUsers,
}

// DeleteCmd removes a twin
var DeleteCmd = &cobra.Command{
	Use:   "delete <user>",
	Short: sym.Short("twin", "Delete a twin and all its snapshots"),
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

// SnapshotsCmd lists saved versions of a twin
var SnapshotsCmd = &cobra.Command{
	Use:   "snapshots <user>",
	Short: sym.Short("twin", "List saved snapshots of a twin"),
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshots,
}

var (
	setUnit  string
	setAt    string
	setType  string
	setForce bool

	getSeries bool
	getFrom   string
	getTo     string
)

func init() {
	SetCmd.Flags().StringVar(&setUnit, "unit", "", "Unit of the value")
	SetCmd.Flags().StringVar(&setAt, "at", "", "Observation time, RFC 3339 or YYYY-MM-DD (default now)")
	SetCmd.Flags().StringVar(&setType, "type", "", "Value type: number, string, boolean, list")
	SetCmd.Flags().BoolVar(&setForce, "force", false, "Store biomarker values that fail validation")

	GetCmd.Flags().BoolVar(&getSeries, "series", false, "Show the full history")
	GetCmd.Flags().StringVar(&getFrom, "from", "", "Series start (inclusive)")
	GetCmd.Flags().StringVar(&getTo, "to", "", "Series end (inclusive)")
}

func runSet(cmd *cobra.Command, args []string) error {
	userID, domain, field, raw := args[0], args[1], args[2], args[3]

	a, err := loadApp()
	if err != nil {
		return err
	}
	ts, err := parseTimeFlag("at", setAt)
	if err != nil {
		return err
	}

	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := cmd.Context()
	t, created, err := a.loadOrNew(ctx, s, userID)
	if err != nil {
		return err
	}

	value, err := parseValue(raw, fieldType(t, domain, field, twin.DataType(setType)))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !t.Schema().IsKnownDomain(domain) {
		pterm.Warning.WithWriter(cmd.ErrOrStderr()).Printfln("%q is not a recognised domain; storing anyway", domain)
	}

	if f, ok := value.(float64); ok && domain == twin.DomainBiomarkers {
		res := checkObservation(a.validator(), t, field, f, setUnit, ts)
		printResult(cmd.ErrOrStderr(), domain+"."+field, res)
		if err := res.Err(); err != nil && !setForce {
			return errors.WithHint(err, "pass --force to store it anyway")
		}
	}

	opts := []twin.SetOption{twin.WithUnit(setUnit), twin.WithMetadata(map[string]any{"source": "cli"})}
	if !ts.IsZero() {
		opts = append(opts, twin.WithTimestamp(ts))
	}
	if err := t.SetValue(domain, field, value, opts...); err != nil {
		return err
	}
	snap, err := s.Save(ctx, t)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(out, map[string]interface{}{
			"user_id":  userID,
			"created":  created,
			"snapshot": snap,
		})
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	fmt.Fprintf(out, "%s %s.%s = %v (%s twin %s)\n", pterm.Green(sym.Normal), domain, field, value, verb, userID)
	return nil
}

// fieldType picks the type a raw argument is parsed as: the explicit flag,
// then the schema, then the existing field.
func fieldType(t *twin.Twin, domain, field string, explicit twin.DataType) twin.DataType {
	if explicit != "" {
		return explicit
	}
	if dt, ok := t.Schema().TypeOf(domain, field); ok {
		return dt
	}
	if d, err := t.GetDomain(domain); err == nil {
		if f, ok := d.GetField(field); ok {
			return f.DataType()
		}
	}
	return ""
}

// checkObservation validates a biomarker value using the twin's own age and
// sex. The unit is only checked when one was given.
func checkObservation(v *validation.Validator, t *twin.Twin, name string, value float64, unit string, ts time.Time) validation.Result {
	var (
		age *float64
		sex string
	)
	if p, err := t.GetValue(twin.DomainDemographics, "age", true); err == nil {
		if f, ok := p.Value().Float(); ok {
			age = &f
		}
	}
	if p, err := t.GetValue(twin.DomainDemographics, "sex", true); err == nil {
		sex, _ = p.Value().Str()
	}

	res := v.ValidateBiomarker(name, value, age, sex)
	if unit != "" {
		res = v.ValidateUnit(name, unit).Merge(res)
	}
	if !ts.IsZero() {
		res = res.Merge(v.ValidateTimestamp(name, ts))
	}
	return res
}

type pointView struct {
	Value     any            `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
	Unit      string         `json:"unit,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func viewOf(p twin.DataPoint) pointView {
	return pointView{
		Value:     p.Value().Interface(),
		Timestamp: p.Timestamp(),
		Unit:      p.Unit(),
		Metadata:  p.Metadata(),
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	userID, domain, field := args[0], args[1], args[2]

	a, err := loadApp()
	if err != nil {
		return err
	}
	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	t, err := s.Load(cmd.Context(), userID)
	if err != nil {
		return err
	}

	var points []twin.DataPoint
	if getSeries || getFrom != "" || getTo != "" {
		var start, end *time.Time
		if from, err := parseTimeFlag("from", getFrom); err != nil {
			return err
		} else if !from.IsZero() {
			start = &from
		}
		if to, err := parseTimeFlag("to", getTo); err != nil {
			return err
		} else if !to.IsZero() {
			end = &to
		}
		points, err = t.GetTimeSeries(domain, field, start, end)
		if err != nil {
			return err
		}
	} else {
		p, err := t.GetValue(domain, field, true)
		if err != nil {
			return err
		}
		points = []twin.DataPoint{p}
	}

	views := make([]pointView, len(points))
	for i, p := range points {
		views[i] = viewOf(p)
	}
	if display.ShouldOutputJSON(cmd) {
		if !getSeries && getFrom == "" && getTo == "" {
			return display.OutputJSON(cmd.OutOrStdout(), views[0])
		}
		return display.OutputJSON(cmd.OutOrStdout(), views)
	}

	data := pterm.TableData{{"Timestamp", "Value", "Unit"}}
	for _, v := range views {
		data = append(data, []string{v.Timestamp.Format(time.RFC3339), fmt.Sprint(v.Value), v.Unit})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
}

func runMissing(cmd *cobra.Command, args []string) error {
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
	domain := ""
	if len(args) == 2 {
		domain = args[1]
	}
	missing, err := t.GetMissingFields(domain)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		if missing == nil {
			missing = []string{}
		}
		return display.OutputJSON(cmd.OutOrStdout(), missing)
	}
	if len(missing) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s no missing fields\n", pterm.Green(sym.Normal))
		return nil
	}
	for _, name := range missing {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", sym.Missing, name)
	}
	return nil
}

func runCompleteness(cmd *cobra.Command, args []string) error {
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
	scores := t.CalculateCompleteness()
	overall := t.OverallCompleteness()
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{
			"domains": scores,
			"overall": overall,
		})
	}

	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	data := pterm.TableData{{"Domain", "Complete"}}
	for _, name := range names {
		data = append(data, []string{name, fmt.Sprintf("%.1f%%", scores[name])})
	}
	data = append(data, []string{"overall", fmt.Sprintf("%.1f%%", overall)})
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
}

func runMark(cmd *cobra.Command, args []string) error {
	userID, domain, field := args[0], args[1], args[2]
	state, err := twin.ParseFieldState(args[3])
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := cmd.Context()
	t, _, err := a.loadOrNew(ctx, s, userID)
	if err != nil {
		return err
	}
	switch state {
	case twin.StateMissing:
		err = t.MarkMissing(domain, field)
	case twin.StateNotApplicable:
		err = t.MarkNotApplicable(domain, field)
	default:
		return errors.WithHint(
			errors.Wrapf(errors.ErrInvalidRequest, "cannot mark a field %s", state),
			"use 'twin set' to record a value")
	}
	if err != nil {
		return err
	}
	if _, err := s.Save(ctx, t); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s.%s is %s\n", sym.StatusGlyph(string(state)), domain, field, state)
	return nil
}

func runUsers(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	users, err := s.ListUsers(cmd.Context())
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		if users == nil {
			users = []string{}
		}
		return display.OutputJSON(cmd.OutOrStdout(), users)
	}
	for _, u := range users {
		fmt.Fprintln(cmd.OutOrStdout(), u)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := s.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s deleted twin %s\n", pterm.Green(sym.Normal), args[0])
	return nil
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	snaps, err := s.Snapshots(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), snaps)
	}
	data := pterm.TableData{{"Snapshot", "Taken"}}
	for _, snap := range snaps {
		data = append(data, []string{snap.ID, snap.TakenAt.Format(time.RFC3339)})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
}
