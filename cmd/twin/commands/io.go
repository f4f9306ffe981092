package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/sym"
	"github.com/teranos/healthtwin/twin"
)

// ImportCmd loads a twin document
var ImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: sym.Short("io", "Load a twin document (JSON or YAML)"),
	Long: sym.IO + ` import — Load a twin document

The document has the shape written by 'twin export': user_id, metadata and
one object per domain. It replaces any stored twin with the same user id.
Validation findings are printed but do not block the import.

Examples:
  twin import alice.json
  twin import labs.yaml --user alice`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// ExportCmd writes a twin document
var ExportCmd = &cobra.Command{
	Use:   "export <user>",
	Short: sym.Short("io", "Write a twin document to stdout"),
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var (
	importUser string
	ioFormat   string
)

func init() {
	ImportCmd.Flags().StringVar(&importUser, "user", "", "Store under this user id instead of the document's")
	ExportCmd.Flags().StringVar(&ioFormat, "format", "json", "Output format: json, yaml")
}

// readDocument decodes a twin document, choosing JSON or YAML by extension.
func readDocument(path string) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrInvalidDataFormat, "unrecognised document extension %q", filepath.Ext(path)),
			"use .json, .yaml or .yml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var doc map[string]any
	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "%s: %v", path, err)
		}
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "%s: %v", path, err)
	}
	return doc, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}
	if importUser != "" && doc != nil {
		doc["user_id"] = importUser
	}
	t, err := twin.FromDict(doc, twin.WithSchema(a.schema))
	if err != nil {
		return errors.Wrapf(err, "import %s", args[0])
	}

	res := a.validator().ValidateTwin(t)
	if len(res.Errors) > 0 || len(res.Warnings) > 0 {
		printResult(cmd.ErrOrStderr(), t.UserID(), res)
	}

	s, closeDB, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	snap, err := s.Save(cmd.Context(), t)
	if err != nil {
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("imported twin %s (%d domains, snapshot %s)",
		t.UserID(), len(t.Domains()), snap.ID)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	switch ioFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(t.ToDict()); err != nil {
			return errors.Wrap(err, "failed to marshal twin to YAML")
		}
		return enc.Close()
	default:
		return errors.Newf("unsupported format: %s (supported: json, yaml)", ioFormat)
	}
}
