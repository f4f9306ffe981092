package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/healthtwin/biomarker"
	"github.com/teranos/healthtwin/display"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
	"github.com/teranos/healthtwin/sym"
)

// RegistryCmd groups biomarker reference table commands
var RegistryCmd = &cobra.Command{
	Use:   "registry",
	Short: sym.Short("registry", "Inspect the biomarker reference table"),
	Long: sym.Registry + ` registry — Biomarker reference ranges and units

The table is the built-in adult table plus the file named by registry.path
(JSON, YAML or TOML). Entries in the file replace built-in entries with the
same name.

Examples:
  twin registry ls
  twin registry show ldl_cholesterol
  twin registry range hdl_cholesterol --sex female --age 52
  twin registry export --format toml > labs.toml`,
}

var registryLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered biomarkers",
	Args:  cobra.NoArgs,
	RunE:  runRegistryLs,
}

var registryShowCmd = &cobra.Command{
	Use:   "show <biomarker>",
	Short: "Show the full metadata of one biomarker",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistryShow,
}

var registryRangeCmd = &cobra.Command{
	Use:   "range <biomarker>",
	Short: "Resolve the reference range for an age and sex",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistryRange,
}

var registryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the effective table to stdout",
	Args:  cobra.NoArgs,
	RunE:  runRegistryExport,
}

var registryWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload registry.path on change and report each reload",
	Args:  cobra.NoArgs,
	RunE:  runRegistryWatch,
}

var (
	rangeAge     float64
	rangeSex     string
	exportFormat string
)

func init() {
	registryRangeCmd.Flags().Float64Var(&rangeAge, "age", 0, "Age in years")
	registryRangeCmd.Flags().StringVar(&rangeSex, "sex", "", "Sex (male or female)")
	registryExportCmd.Flags().StringVar(&exportFormat, "format", "yaml", "Output format: json, yaml, toml")

	RegistryCmd.AddCommand(registryLsCmd)
	RegistryCmd.AddCommand(registryShowCmd)
	RegistryCmd.AddCommand(registryRangeCmd)
	RegistryCmd.AddCommand(registryExportCmd)
	RegistryCmd.AddCommand(registryWatchCmd)
}

func runRegistryLs(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	names := a.registry.ListAll()

	if display.ShouldOutputJSON(cmd) {
		metas := make([]biomarker.Metadata, 0, len(names))
		for _, name := range names {
			m, _ := a.registry.Get(name)
			metas = append(metas, m)
		}
		return display.OutputJSON(cmd.OutOrStdout(), metas)
	}

	data := pterm.TableData{{"Biomarker", "Unit", "Reference", "Stratified"}}
	for _, name := range names {
		m, _ := a.registry.Get(name)
		var strata string
		switch {
		case len(m.AgeRanges) > 0 && len(m.SexRanges) > 0:
			strata = "age, sex"
		case len(m.AgeRanges) > 0:
			strata = "age"
		case len(m.SexRanges) > 0:
			strata = "sex"
		}
		data = append(data, []string{name, m.Unit, formatRange(m.ReferenceRange), strata})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
}

func runRegistryShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	m, ok := a.registry.Get(args[0])
	if !ok {
		return errors.WithHint(
			errors.Wrapf(errors.ErrNotFound, "biomarker %q", args[0]),
			"run 'twin registry ls' to list registered biomarkers")
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), m)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", sym.Registry, pterm.Bold.Sprint(m.Name))
	fmt.Fprintf(out, "  unit:       %s\n", m.Unit)
	fmt.Fprintf(out, "  reference:  %s\n", formatRange(m.ReferenceRange))
	fmt.Fprintf(out, "  plausible:  %s\n", formatRange(m.PlausibleBounds(a.cfg.Validation.PlausibilityFactor)))
	for _, ar := range m.AgeRanges {
		fmt.Fprintf(out, "  age %s-%s: %s\n", num(ar.MinAge), num(ar.MaxAge), formatRange(ar.Range))
	}
	for _, sex := range []string{"female", "male"} {
		if r, ok := m.SexRanges[sex]; ok {
			fmt.Fprintf(out, "  %-10s  %s\n", sex+":", formatRange(r))
		}
	}
	if m.ClinicalSignificance != "" {
		fmt.Fprintf(out, "\n  %s\n", m.ClinicalSignificance)
	}
	return nil
}

func runRegistryRange(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	rng, ok := a.registry.GetReferenceRange(args[0], ageFlag(cmd, rangeAge), rangeSex)
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "biomarker %q", args[0])
	}
	m, _ := a.registry.Get(args[0])
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{
			"biomarker": m.Name,
			"unit":      m.Unit,
			"range":     rng,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", m.Name, formatRange(rng), m.Unit)
	return nil
}

func runRegistryExport(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	metas := make([]biomarker.Metadata, 0, a.registry.Len())
	for _, name := range a.registry.ListAll() {
		m, _ := a.registry.Get(name)
		metas = append(metas, m)
	}
	return biomarker.Encode(cmd.OutOrStdout(), biomarker.TableFrom(metas...), biomarker.Format(exportFormat))
}

func runRegistryWatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	path := a.cfg.Registry.Path
	if path == "" {
		return errors.WithHint(
			errors.Wrap(errors.ErrInvalidRequest, "registry.path is not set"),
			"twin am set registry.path ./labs.yaml")
	}

	w, err := biomarker.NewWatcher(path, a.registry, logger.ComponentLogger(logger.ComponentWatcher))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	w.OnReload(func(t biomarker.Table) {
		fmt.Fprintf(out, "%s reloaded %s: %d entries, %d registered\n",
			pterm.Green(sym.Normal), path, len(t), a.registry.Len())
	})
	w.Start()
	defer w.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pterm.Info.WithWriter(out).Printfln("Watching %s (%d biomarkers). Ctrl-C to stop.", path, a.registry.Len())
	<-ctx.Done()
	return nil
}

func formatRange(r biomarker.Range) string {
	return num(r.Min) + "-" + num(r.Max)
}
