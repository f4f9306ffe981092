package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/healthtwin/biomarker"
	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
	"github.com/teranos/healthtwin/twin"
)

// Config tunes the validator.
type Config struct {
	// PlausibilityFactor widens a reference range into plausible bounds for
	// biomarkers that do not declare their own.
	PlausibilityFactor float64
	// FutureTolerance allows for clock skew between devices and this host.
	FutureTolerance time.Duration
}

// DefaultConfig returns the defaults used when no Config is given.
func DefaultConfig() Config {
	return Config{
		PlausibilityFactor: 10,
		FutureTolerance:    5 * time.Minute,
	}
}

// Validator checks values, units and timestamps against a Registry.
type Validator struct {
	registry *biomarker.Registry
	cfg      Config
	now      func() time.Time
	log      *zap.SugaredLogger
}

// Option configures a Validator.
type Option func(*Validator)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(v *Validator) { v.cfg = cfg }
}

// WithClock overrides the time source used for future-timestamp checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(v *Validator) { v.log = l }
}

// New returns a Validator over registry.
func New(registry *biomarker.Registry, opts ...Option) *Validator {
	v := &Validator{
		registry: registry,
		cfg:      DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = logger.OrComponent(v.log, logger.ComponentValidator)
	return v
}

// ValidateBiomarker checks value against the resolved reference range and the
// plausible bounds. Outside the reference range is a warning; outside the
// plausible bounds is an error. A value inside its resolved reference range is
// always valid. Unknown biomarkers pass with a warning.
func (v *Validator) ValidateBiomarker(name string, value float64, age *float64, sex string) Result {
	r := NewResult()
	if math.IsNaN(value) || math.IsInf(value, 0) {
		r.AddError(errors.CodeInvalidBiomarkerValue, name, fmt.Sprintf("%v is not a finite number", value))
		return r
	}

	meta, ok := v.registry.Get(name)
	if !ok {
		r.AddWarning(errors.CodeNoReferenceData, name, "no reference data for this biomarker")
		return r
	}

	rng, _ := v.registry.GetReferenceRange(name, age, sex)
	bounds := meta.PlausibleBounds(v.cfg.PlausibilityFactor)
	if !rng.Contains(value) && !bounds.Contains(value) {
		r.AddError(errors.CodeInvalidBiomarkerValue, name,
			fmt.Sprintf("%s %s is outside the plausible range %s-%s",
				formatNum(value), meta.Unit, formatNum(bounds.Min), formatNum(bounds.Max)))
		v.log.Debugw("implausible biomarker value",
			logger.FieldBiomarker, name,
			logger.FieldValue, value)
		return r
	}

	if status := biomarker.Classify(value, rng); status != biomarker.StatusNormal {
		direction := "below"
		if status == biomarker.StatusHigh {
			direction = "above"
		}
		r.AddWarning(errors.CodeOutOfRange, name,
			fmt.Sprintf("%s %s is %s the reference range %s-%s",
				formatNum(value), meta.Unit, direction, formatNum(rng.Min), formatNum(rng.Max)))
	}
	return r
}

// ValidateUnit fails when unit differs from the registry's standard unit.
// Comparison ignores case and surrounding space. Unknown biomarkers pass with a
// warning.
func (v *Validator) ValidateUnit(name, unit string) Result {
	r := NewResult()
	meta, ok := v.registry.Get(name)
	if !ok {
		r.AddWarning(errors.CodeNoReferenceData, name, "no reference data; unit not checked")
		return r
	}
	unit = strings.TrimSpace(unit)
	if unit == "" {
		r.AddError(errors.CodeMissingRequiredField, name, "unit is required, expected "+meta.Unit)
		return r
	}
	if !strings.EqualFold(unit, meta.Unit) {
		r.AddError(errors.CodeInvalidUnit, name, fmt.Sprintf("unit %q does not match standard unit %q", unit, meta.Unit))
	}
	return r
}

// ValidateTimestamp rejects zero timestamps and timestamps in the future
// beyond the configured tolerance.
func (v *Validator) ValidateTimestamp(field string, ts time.Time) Result {
	r := NewResult()
	if ts.IsZero() {
		r.AddError(errors.CodeInvalidTimestamp, field, "timestamp is required")
		return r
	}
	if limit := v.now().Add(v.cfg.FutureTolerance); ts.After(limit) {
		r.AddError(errors.CodeInvalidTimestamp, field,
			fmt.Sprintf("timestamp %s is in the future", ts.UTC().Format(time.RFC3339)))
	}
	return r
}

// ValidateTemporalConsistency checks a field's history: no point may lie in the
// future, points must be in chronological order, and state must agree with
// history. Repeated timestamps are a warning.
func (v *Validator) ValidateTemporalConsistency(field *twin.Field) Result {
	r := NewResult()
	if field == nil {
		r.AddError(errors.CodeMissingRequiredField, "", "no field given")
		return r
	}
	name := field.Name()
	points := field.Points()

	populated := field.State() == twin.StatePopulated
	if populated != (len(points) > 0) {
		r.AddError(errors.CodeInvalidDataFormat, name,
			fmt.Sprintf("state %s disagrees with %d recorded points", field.State(), len(points)))
	}

	limit := v.now().Add(v.cfg.FutureTolerance)
	for i, p := range points {
		ts := p.Timestamp()
		if ts.After(limit) {
			r.AddError(errors.CodeInvalidTimestamp, name,
				fmt.Sprintf("point %d at %s is in the future", i, ts.Format(time.RFC3339)))
		}
		if i == 0 {
			continue
		}
		prev := points[i-1].Timestamp()
		switch {
		case ts.Before(prev):
			r.AddError(errors.CodeInvalidTimestamp, name,
				fmt.Sprintf("point %d at %s precedes point %d", i, ts.Format(time.RFC3339), i-1))
		case ts.Equal(prev):
			r.AddWarning(errors.CodeDuplicateTimestamp, name,
				fmt.Sprintf("points %d and %d share timestamp %s", i-1, i, ts.Format(time.RFC3339)))
		}
	}
	return r
}

// ValidateDataPoint runs the unit, value and timestamp checks for one
// candidate biomarker observation.
func (v *Validator) ValidateDataPoint(name string, value float64, unit string, age *float64, sex string, ts time.Time) Result {
	return v.ValidateUnit(name, unit).
		Merge(v.ValidateBiomarker(name, value, age, sex)).
		Merge(v.ValidateTimestamp(name, ts))
}

// ValidateTwin checks the temporal consistency of every field and, for the
// biomarkers domain, the latest value and every recorded unit. Age and sex
// come from the latest demographics entries when present.
func (v *Validator) ValidateTwin(t *twin.Twin) Result {
	r := NewResult()
	age, sex := subject(t)

	for _, domainName := range t.Domains() {
		d, err := t.GetDomain(domainName)
		if err != nil {
			continue
		}
		for _, fieldName := range d.ListFields() {
			f, _ := d.GetField(fieldName)
			checked := v.ValidateTemporalConsistency(f)
			if domainName == twin.DomainBiomarkers && f.DataType() == twin.TypeNumber {
				checked = checked.Merge(v.checkBiomarkerField(f, age, sex))
			}
			r = r.Merge(checked.prefixed(domainName))
		}
	}

	if !r.IsValid {
		v.log.Infow("twin failed validation",
			logger.FieldUserID, t.UserID(),
			logger.FieldCount, len(r.Errors))
	}
	return r
}

func (v *Validator) checkBiomarkerField(f *twin.Field, age *float64, sex string) Result {
	r := NewResult()
	latest, ok := f.Latest()
	if !ok {
		return r
	}
	if _, known := v.registry.Get(f.Name()); !known {
		return r
	}

	units := map[string]bool{}
	for _, p := range f.Points() {
		if p.Unit() == "" || units[p.Unit()] {
			continue
		}
		units[p.Unit()] = true
		r = r.Merge(v.ValidateUnit(f.Name(), p.Unit()))
	}
	value, _ := latest.Value().Float()
	return r.Merge(v.ValidateBiomarker(f.Name(), value, age, sex))
}

func subject(t *twin.Twin) (*float64, string) {
	var (
		age *float64
		sex string
	)
	if p, err := t.GetValue(twin.DomainDemographics, "age", true); err == nil {
		if a, ok := p.Value().Float(); ok {
			age = &a
		}
	}
	if p, err := t.GetValue(twin.DomainDemographics, "sex", true); err == nil {
		sex, _ = p.Value().Str()
	}
	return age, sex
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
