// Package biomarker holds reference metadata for lab markers: canonical unit,
// reference ranges stratified by age and sex, and plausibility bounds.
package biomarker

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
)

// Range is a closed interval [Min, Max].
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

func (r Range) valid() bool { return r.Min <= r.Max }

// AgeRange maps an inclusive age bracket [MinAge, MaxAge] to a reference range.
type AgeRange struct {
	MinAge float64 `json:"min_age"`
	MaxAge float64 `json:"max_age"`
	Range  Range   `json:"range"`
}

func (a AgeRange) contains(age float64) bool { return age >= a.MinAge && age <= a.MaxAge }

// Metadata describes one biomarker.
type Metadata struct {
	Name                 string           `json:"name"`
	Unit                 string           `json:"unit"`
	ReferenceRange       Range            `json:"reference_range"`
	PlausibleRange       *Range           `json:"plausible_range,omitempty"`
	ClinicalSignificance string           `json:"clinical_significance"`
	AgeRanges            []AgeRange       `json:"age_specific_ranges,omitempty"`
	SexRanges            map[string]Range `json:"sex_specific_ranges,omitempty"`
}

// PlausibleBounds returns the physiologically plausible interval. Without an
// explicit one the envelope of the base and stratified ranges is widened by
// factor: the lower bound is divided by it and the upper bound multiplied.
func (m Metadata) PlausibleBounds(factor float64) Range {
	if m.PlausibleRange != nil {
		return *m.PlausibleRange
	}
	if factor < 1 {
		factor = 1
	}
	env := m.envelope()
	lo := env.Min / factor
	if env.Min < 0 {
		lo = env.Min * factor
	}
	return Range{Min: lo, Max: env.Max * factor}
}

// envelope is the smallest range covering the base and every stratified range.
func (m Metadata) envelope() Range {
	env := m.ReferenceRange
	widen := func(r Range) {
		env.Min = min(env.Min, r.Min)
		env.Max = max(env.Max, r.Max)
	}
	for _, ar := range m.AgeRanges {
		widen(ar.Range)
	}
	for _, r := range m.SexRanges {
		widen(r)
	}
	return env
}

func (r Range) within(outer Range) bool { return r.Min >= outer.Min && r.Max <= outer.Max }

func (m Metadata) clone() Metadata {
	out := m
	if m.PlausibleRange != nil {
		r := *m.PlausibleRange
		out.PlausibleRange = &r
	}
	out.AgeRanges = slices.Clone(m.AgeRanges)
	out.SexRanges = maps.Clone(m.SexRanges)
	return out
}

// validate normalises sex keys, sorts age brackets and rejects inconsistent
// entries.
func (m *Metadata) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.Wrap(errors.ErrMissingRequiredField, "biomarker name")
	}
	if strings.TrimSpace(m.Unit) == "" {
		return errors.Wrapf(errors.ErrMissingRequiredField, "%s: unit", m.Name)
	}
	if !m.ReferenceRange.valid() {
		return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: reference range min %v > max %v",
			m.Name, m.ReferenceRange.Min, m.ReferenceRange.Max)
	}
	if m.PlausibleRange != nil && !m.PlausibleRange.valid() {
		return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: plausible range min > max", m.Name)
	}

	if len(m.SexRanges) > 0 {
		normalised := make(map[string]Range, len(m.SexRanges))
		for sex, r := range m.SexRanges {
			key := NormalizeSex(sex)
			if key == "" {
				return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: empty sex key", m.Name)
			}
			if !r.valid() {
				return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: %s range min > max", m.Name, key)
			}
			if _, dup := normalised[key]; dup {
				return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: sex %q listed twice", m.Name, key)
			}
			normalised[key] = r
		}
		m.SexRanges = normalised
	}
	if m.PlausibleRange != nil {
		for sex, r := range m.SexRanges {
			if !r.within(*m.PlausibleRange) {
				return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: %s range %v-%v lies outside the plausible range %v-%v",
					m.Name, sex, r.Min, r.Max, m.PlausibleRange.Min, m.PlausibleRange.Max)
			}
		}
	}

	m.AgeRanges = slices.Clone(m.AgeRanges)
	slices.SortFunc(m.AgeRanges, func(a, b AgeRange) int {
		switch {
		case a.MinAge < b.MinAge:
			return -1
		case a.MinAge > b.MinAge:
			return 1
		default:
			return 0
		}
	})
	for i, ar := range m.AgeRanges {
		if ar.MinAge > ar.MaxAge || ar.MinAge < 0 {
			return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: age bracket [%v, %v]", m.Name, ar.MinAge, ar.MaxAge)
		}
		if !ar.Range.valid() {
			return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: age bracket [%v, %v] range min > max", m.Name, ar.MinAge, ar.MaxAge)
		}
		if m.PlausibleRange != nil && !ar.Range.within(*m.PlausibleRange) {
			return errors.Wrapf(errors.ErrInvalidDataFormat, "%s: age bracket [%v, %v] lies outside the plausible range %v-%v",
				m.Name, ar.MinAge, ar.MaxAge, m.PlausibleRange.Min, m.PlausibleRange.Max)
		}
		if i > 0 && ar.MinAge <= m.AgeRanges[i-1].MaxAge {
			prev := m.AgeRanges[i-1]
			return errors.WithHint(
				errors.Wrapf(errors.ErrOverlappingAgeRanges, "%s: [%v, %v] overlaps [%v, %v]",
					m.Name, prev.MinAge, prev.MaxAge, ar.MinAge, ar.MaxAge),
				"age brackets are inclusive on both ends")
		}
	}
	return nil
}

// NormalizeSex maps free-form input onto "male", "female" or a lower-cased,
// trimmed key.
func NormalizeSex(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "m", "male", "man":
		return "male"
	case "f", "female", "woman":
		return "female"
	default:
		return v
	}
}

// Age is a convenience for the optional age argument of GetReferenceRange.
func Age(years float64) *float64 { return &years }

// Registry is a concurrency-safe store of biomarker metadata keyed by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Metadata
	log     *zap.SugaredLogger
}

// NewRegistry returns an empty registry. A nil logger uses the component logger.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		entries: make(map[string]Metadata),
		log:     logger.OrComponent(log, logger.ComponentRegistry),
	}
}

// NewDefaultRegistry returns a registry loaded with DefaultTable.
func NewDefaultRegistry(log *zap.SugaredLogger) *Registry {
	r := NewRegistry(log)
	if err := r.Load(DefaultTable()); err != nil {
		// DefaultTable is covered by tests; a failure here is a build defect.
		panic(err)
	}
	return r
}

// Register upserts m by name. Overlapping age brackets fail with
// ErrOverlappingAgeRanges.
func (r *Registry) Register(m Metadata) error {
	m = m.clone()
	if err := m.validate(); err != nil {
		r.log.Warnw("rejected biomarker",
			logger.FieldBiomarker, m.Name,
			logger.FieldError, err)
		return err
	}

	r.mu.Lock()
	_, replaced := r.entries[m.Name]
	r.entries[m.Name] = m
	r.mu.Unlock()

	r.log.Debugw("registered biomarker",
		logger.FieldBiomarker, m.Name,
		logger.FieldUnit, m.Unit,
		"replaced", replaced)
	return nil
}

// Load registers every entry of table. Entries are validated first; if any is
// rejected nothing is registered.
func (r *Registry) Load(table Table) error {
	metas, err := table.Metadata()
	if err != nil {
		return err
	}
	for i := range metas {
		if err := metas[i].validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	for _, m := range metas {
		r.entries[m.Name] = m
	}
	r.mu.Unlock()

	r.log.Infow("loaded biomarker table", logger.FieldCount, len(metas))
	return nil
}

// Get returns a copy of the named biomarker's metadata.
func (r *Registry) Get(name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[name]
	if !ok {
		return Metadata{}, false
	}
	return m.clone(), true
}

// GetReferenceRange resolves the reference range for name: a sex-specific range
// when sex is given and listed, else the age bracket containing age, else the
// base range. It returns false for unknown biomarkers.
func (r *Registry) GetReferenceRange(name string, age *float64, sex string) (Range, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.entries[name]
	if !ok {
		return Range{}, false
	}
	if sex != "" {
		if rng, ok := m.SexRanges[NormalizeSex(sex)]; ok {
			return rng, true
		}
	}
	if age != nil {
		for _, ar := range m.AgeRanges {
			if ar.contains(*age) {
				return ar.Range, true
			}
		}
	}
	return m.ReferenceRange, true
}

// ListAll returns biomarker names in lexical order.
func (r *Registry) ListAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Len returns the number of registered biomarkers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Status is where a value falls relative to a reference range.
type Status string

const (
	StatusLow    Status = "low"
	StatusNormal Status = "normal"
	StatusHigh   Status = "high"
)

// Classify places value relative to rng.
func Classify(value float64, rng Range) Status {
	switch {
	case value < rng.Min:
		return StatusLow
	case value > rng.Max:
		return StatusHigh
	default:
		return StatusNormal
	}
}
