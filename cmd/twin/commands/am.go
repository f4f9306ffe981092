package commands

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/healthtwin/am"
	"github.com/teranos/healthtwin/display"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/sym"
	"github.com/teranos/healthtwin/twin"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.Short("am", "Manage twin configuration"),
	Long: sym.AM + ` am — Manage twin configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/twin/am.toml)
3. User config (~/.twin/am.toml)
4. Project config (nearest am.toml above the working directory)
5. Environment variables (TWIN_* prefix, e.g. TWIN_DATABASE_PATH)

Examples:
  twin am show                         # Show current configuration
  twin am show --format json           # Show configuration in JSON format
  twin am get reasoning.max_tokens     # Get specific config value
  twin am set registry.path labs.yaml  # Persist a value in ~/.twin/am.toml
  twin am where                        # Show which source set each value`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, reasoning.max_tokens)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a value in the user config",
	Long: `Write a value to ~/.twin/am.toml. The previous file is kept as
am.toml.back1 (up to three backups). Comma-separated values become lists.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# twin configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# twin configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.Wrapf(errors.ErrNotFound, "configuration key %q", key)
	}
	value := am.Get(key)
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), map[string]interface{}{"key": key, "value": value})
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]

	var value interface{}
	if strings.Contains(raw, ",") {
		value, _ = parseValue(raw, twin.TypeList)
	} else {
		v, err := parseValue(raw, "")
		if err != nil {
			return err
		}
		value = v
		// Keep integer settings integers in the TOML file
		if f, ok := v.(float64); ok && f == math.Trunc(f) && !strings.Contains(raw, ".") {
			value = int64(f)
		}
	}

	if err := am.SetUserValue(key, value); err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	// The file keeps the value even when the result no longer validates
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to reload config")
	}
	if err := cfg.Validate(); err != nil {
		pterm.Warning.WithWriter(cmd.ErrOrStderr()).Printfln("%s was written but the configuration is now invalid: %v", key, err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v (%s)\n", pterm.Green(sym.Normal), key, value, am.UserConfigPath())
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	if _, err := buildRegistry(cfg.Registry); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), sym.Normal+" Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return errors.Wrap(err, "failed to get config introspection")
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), intro)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  1. [DEFAULT]  Built-in defaults")
	fmt.Fprintln(out, "  2. [SYSTEM]   /etc/twin/am.toml")
	fmt.Fprintln(out, "  3. [USER]     ~/.twin/am.toml")
	fmt.Fprintln(out, "  4. [PROJECT]  ./am.toml (searches up directories)")
	fmt.Fprintln(out, "  5. [ENV]      TWIN_* environment variables")
	fmt.Fprintln(out)

	type fileGroup struct {
		source   am.ConfigSource
		path     string
		settings []am.SettingInfo
	}
	groups := make(map[string]*fileGroup)
	for _, setting := range intro.Settings {
		key := setting.SourcePath
		if key == "" || setting.Source == am.SourceEnvironment {
			key = string(setting.Source)
		}
		g, ok := groups[key]
		if !ok {
			g = &fileGroup{source: setting.Source, path: setting.SourcePath}
			if setting.Source == am.SourceEnvironment {
				g.path = ""
			}
			groups[key] = g
		}
		g.settings = append(g.settings, setting)
	}

	sourceOrder := []am.ConfigSource{
		am.SourceDefault,
		am.SourceSystem,
		am.SourceUser,
		am.SourceProject,
		am.SourceEnvironment,
	}

	fmt.Fprintln(out, "Active configuration:")
	for _, source := range sourceOrder {
		var ordered []*fileGroup
		for _, g := range groups {
			if g.source == source {
				ordered = append(ordered, g)
			}
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].path < ordered[j].path })

		for _, g := range ordered {
			switch {
			case g.path != "":
				fmt.Fprintf(out, "\n%s: %d settings from %s\n", source, len(g.settings), g.path)
			case source == am.SourceEnvironment:
				fmt.Fprintf(out, "\n%s: %d settings from environment variables\n", source, len(g.settings))
			default:
				fmt.Fprintf(out, "\n%s: %d settings\n", source, len(g.settings))
			}
			for _, setting := range g.settings {
				valueStr := fmt.Sprintf("%v", setting.Value)
				if len(valueStr) > 50 {
					valueStr = valueStr[:47] + "..."
				}
				fmt.Fprintf(out, "  %s = %s\n", setting.Key, valueStr)
			}
		}
	}
	return nil
}
