// Package commands implements the twin CLI.
package commands

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/healthtwin/am"
	"github.com/teranos/healthtwin/biomarker"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/internal/util"
	"github.com/teranos/healthtwin/logger"
	"github.com/teranos/healthtwin/store"
	"github.com/teranos/healthtwin/twin"
)

// app bundles what most commands need: validated config, the biomarker
// registry and the schema new twins start with.
type app struct {
	cfg      *am.Config
	registry *biomarker.Registry
	schema   *twin.Schema
}

func loadApp() (*app, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	reg, err := buildRegistry(cfg.Registry)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, registry: reg, schema: buildSchema(cfg.Schema, reg)}, nil
}

func buildRegistry(rc am.RegistryConfig) (*biomarker.Registry, error) {
	log := logger.ComponentLogger(logger.ComponentRegistry)
	reg := biomarker.NewRegistry(log)
	if rc.Builtin {
		reg = biomarker.NewDefaultRegistry(log)
	}
	if rc.Path == "" {
		return reg, nil
	}
	table, err := biomarker.LoadFile(rc.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read biomarker table %s", rc.Path)
	}
	if err := reg.Load(table); err != nil {
		return nil, errors.Wrapf(err, "failed to load biomarker table %s", rc.Path)
	}
	return reg, nil
}

func buildSchema(sc am.SchemaConfig, reg *biomarker.Registry) *twin.Schema {
	s := twin.DefaultSchema()
	if sc.IncludeRegistry {
		s = biomarker.SchemaFromRegistry(reg)
	}
	if len(sc.Domains) > 0 {
		s.Recognise(sc.Domains...)
	}
	return s
}

// openStore opens the configured database. The returned func closes it.
func (a *app) openStore() (*store.TwinStore, func(), error) {
	database, err := openDatabase(a.cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	s := store.New(database,
		store.WithTwinOptions(twin.WithSchema(a.schema)),
		store.WithLogger(logger.ComponentLogger(logger.ComponentStore)))
	return s, func() { database.Close() }, nil
}

// loadOrNew returns the stored twin, or a fresh one when the user is unknown.
func (a *app) loadOrNew(ctx context.Context, s *store.TwinStore, userID string) (*twin.Twin, bool, error) {
	t, err := s.Load(ctx, userID)
	if err == nil {
		return t, false, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, false, err
	}
	t, err = twin.New(userID, twin.WithSchema(a.schema))
	return t, true, err
}

// parseValue converts a command-line argument to the given type. An empty
// type infers number, then boolean, then string.
func parseValue(raw string, dt twin.DataType) (any, error) {
	switch dt {
	case twin.TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrTypeMismatch, "%q is not a number", raw)
		}
		return f, nil
	case twin.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrTypeMismatch, "%q is not a boolean", raw)
		}
		return b, nil
	case twin.TypeString:
		return raw, nil
	case twin.TypeList:
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	case "":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		if b, err := strconv.ParseBool(raw); err == nil {
			return b, nil
		}
		return raw, nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "unknown data type %q", dt)
	}
}

// parseTimeFlag accepts RFC 3339 or a bare date (midnight UTC). Empty means
// the zero time.
func parseTimeFlag(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, errors.WithHint(
			errors.Wrapf(errors.ErrInvalidTimestamp, "--%s %q", name, raw),
			"use 2024-01-31 or 2024-01-31T08:00:00Z")
	}
	return t, nil
}

// ageFlag returns nil when the flag was not set.
func ageFlag(cmd *cobra.Command, age float64) *float64 {
	if !cmd.Flags().Changed("age") {
		return nil
	}
	return util.Ptr(age)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
