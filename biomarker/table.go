package biomarker

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/healthtwin/errors"
)

//go:embed defaults.yaml
var defaultTableYAML []byte

// Table is the on-disk shape of a biomarker table: name -> entry.
type Table map[string]Entry

// Entry is one biomarker as written in a table file. Ranges are two-element
// [min, max] arrays.
type Entry struct {
	Name                 string               `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Unit                 string               `json:"unit" yaml:"unit" toml:"unit"`
	ReferenceRange       []float64            `json:"reference_range" yaml:"reference_range" toml:"reference_range"`
	PlausibleRange       []float64            `json:"plausible_range,omitempty" yaml:"plausible_range,omitempty" toml:"plausible_range,omitempty"`
	ClinicalSignificance string               `json:"clinical_significance,omitempty" yaml:"clinical_significance,omitempty" toml:"clinical_significance,omitempty"`
	AgeSpecificRanges    []AgeEntry           `json:"age_specific_ranges,omitempty" yaml:"age_specific_ranges,omitempty" toml:"age_specific_ranges,omitempty"`
	SexSpecificRanges    map[string][]float64 `json:"sex_specific_ranges,omitempty" yaml:"sex_specific_ranges,omitempty" toml:"sex_specific_ranges,omitempty"`
}

// AgeEntry is an inclusive age bracket in a table file.
type AgeEntry struct {
	MinAge float64   `json:"min_age" yaml:"min_age" toml:"min_age"`
	MaxAge float64   `json:"max_age" yaml:"max_age" toml:"max_age"`
	Range  []float64 `json:"range" yaml:"range" toml:"range"`
}

// Metadata converts the table into registry entries sorted by name. The entry
// name defaults to its key and must match it when given.
func (t Table) Metadata() ([]Metadata, error) {
	out := make([]Metadata, 0, len(t))
	for _, key := range slices.Sorted(maps.Keys(t)) {
		m, err := t[key].metadata(key)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (e Entry) metadata(key string) (Metadata, error) {
	name := e.Name
	if name == "" {
		name = key
	}
	if name != key {
		return Metadata{}, errors.Wrapf(errors.ErrInvalidDataFormat, "entry %q is named %q", key, name)
	}

	ref, err := toRange(e.ReferenceRange)
	if err != nil {
		return Metadata{}, errors.Wrapf(err, "%s.reference_range", key)
	}
	m := Metadata{
		Name:                 name,
		Unit:                 e.Unit,
		ReferenceRange:       ref,
		ClinicalSignificance: e.ClinicalSignificance,
	}
	if len(e.PlausibleRange) > 0 {
		p, err := toRange(e.PlausibleRange)
		if err != nil {
			return Metadata{}, errors.Wrapf(err, "%s.plausible_range", key)
		}
		m.PlausibleRange = &p
	}
	for i, ae := range e.AgeSpecificRanges {
		r, err := toRange(ae.Range)
		if err != nil {
			return Metadata{}, errors.Wrapf(err, "%s.age_specific_ranges[%d]", key, i)
		}
		m.AgeRanges = append(m.AgeRanges, AgeRange{MinAge: ae.MinAge, MaxAge: ae.MaxAge, Range: r})
	}
	if len(e.SexSpecificRanges) > 0 {
		m.SexRanges = make(map[string]Range, len(e.SexSpecificRanges))
		for sex, raw := range e.SexSpecificRanges {
			r, err := toRange(raw)
			if err != nil {
				return Metadata{}, errors.Wrapf(err, "%s.sex_specific_ranges.%s", key, sex)
			}
			m.SexRanges[sex] = r
		}
	}
	return m, nil
}

func toRange(pair []float64) (Range, error) {
	if len(pair) != 2 {
		return Range{}, errors.Wrapf(errors.ErrInvalidDataFormat, "expected [min, max], got %d values", len(pair))
	}
	return Range{Min: pair[0], Max: pair[1]}, nil
}

// TableFrom converts registry entries back to table form.
func TableFrom(metas ...Metadata) Table {
	t := make(Table, len(metas))
	for _, m := range metas {
		e := Entry{
			Name:                 m.Name,
			Unit:                 m.Unit,
			ReferenceRange:       []float64{m.ReferenceRange.Min, m.ReferenceRange.Max},
			ClinicalSignificance: m.ClinicalSignificance,
		}
		if m.PlausibleRange != nil {
			e.PlausibleRange = []float64{m.PlausibleRange.Min, m.PlausibleRange.Max}
		}
		for _, ar := range m.AgeRanges {
			e.AgeSpecificRanges = append(e.AgeSpecificRanges, AgeEntry{
				MinAge: ar.MinAge, MaxAge: ar.MaxAge,
				Range: []float64{ar.Range.Min, ar.Range.Max},
			})
		}
		if len(m.SexRanges) > 0 {
			e.SexSpecificRanges = make(map[string][]float64, len(m.SexRanges))
			for sex, r := range m.SexRanges {
				e.SexSpecificRanges[sex] = []float64{r.Min, r.Max}
			}
		}
		t[m.Name] = e
	}
	return t
}

// Format names a table encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath infers the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", errors.WithHint(
			errors.Wrapf(errors.ErrInvalidDataFormat, "unrecognised table extension %q", filepath.Ext(path)),
			"use .json, .yaml, .yml or .toml")
	}
}

// LoadFile reads a table from path, choosing the decoder by extension.
func LoadFile(path string) (Table, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open biomarker table %s", path)
	}
	defer f.Close()

	t, err := Decode(f, format)
	if err != nil {
		return nil, errors.Wrapf(err, "biomarker table %s", path)
	}
	return t, nil
}

// Decode reads a table in the given format.
func Decode(r io.Reader, format Format) (Table, error) {
	var t Table
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidDataFormat, err.Error())
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil && err != io.EOF {
			return nil, errors.Wrap(errors.ErrInvalidDataFormat, err.Error())
		}
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(&t)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidDataFormat, err.Error())
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "unknown key %s", undecoded[0])
		}
	default:
		return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "unknown format %q", format)
	}
	if t == nil {
		t = Table{}
	}
	return t, nil
}

// Encode writes t in the given format.
func Encode(w io.Writer, t Table, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(t)
	default:
		return errors.Wrapf(errors.ErrInvalidDataFormat, "unknown format %q", format)
	}
}

// DefaultTable returns the built-in adult reference table. Values are in
// conventional US units.
func DefaultTable() Table {
	t, err := Decode(bytes.NewReader(defaultTableYAML), FormatYAML)
	if err != nil {
		panic(errors.Wrap(err, "embedded default table"))
	}
	return t
}
