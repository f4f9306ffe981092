// Package twin holds the per-user health record: domains of typed, temporally
// ordered fields with explicit populated/missing/not-applicable state.
package twin

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
)

// CurrentVersion is the document version written by ToDict.
const CurrentVersion = "1.0.0"

// Top-level dictionary keys that can never name a domain.
const (
	keyUserID   = "user_id"
	keyMetadata = "metadata"
)

// Metadata is the versioned bookkeeping attached to every twin.
type Metadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   string    `json:"version"`
}

// Twin is the aggregate root for one user. All methods are safe for concurrent
// use; mutations hold the write lock for their whole read-modify-write.
type Twin struct {
	mu       sync.RWMutex
	userID   string
	metadata Metadata
	domains  map[string]*Domain

	schema *Schema
	now    func() time.Time
	log    *zap.SugaredLogger
}

// Option configures a Twin at construction.
type Option func(*Twin)

// WithSchema pre-declares the schema's fields as Missing and uses it to type
// new fields.
func WithSchema(s *Schema) Option {
	return func(t *Twin) { t.schema = s }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Twin) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger. Defaults to the "twin" component logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(t *Twin) {
		if l != nil {
			t.log = l
		}
	}
}

// New creates an empty twin for userID.
func New(userID string, opts ...Option) (*Twin, error) {
	t, err := newTwin(userID, opts...)
	if err != nil {
		return nil, err
	}
	t.declareSchema()
	t.log.Debugw("twin created",
		logger.FieldUserID, userID,
		logger.FieldCount, len(t.domains))
	return t, nil
}

func newTwin(userID string, opts ...Option) (*Twin, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.Wrap(errors.ErrMissingRequiredField, "user_id")
	}
	t := &Twin{
		userID:  userID,
		domains: make(map[string]*Domain),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.ComponentLogger(logger.ComponentTwin)
	}
	created := t.now().UTC()
	t.metadata = Metadata{CreatedAt: created, UpdatedAt: created, Version: CurrentVersion}
	return t, nil
}

// declareSchema adds every schema field not already present as Missing.
func (t *Twin) declareSchema() {
	if t.schema == nil {
		return
	}
	for _, domain := range t.schema.Domains() {
		d := t.domainFor(domain)
		for _, name := range t.schema.Fields(domain) {
			if _, ok := d.fields[name]; ok {
				continue
			}
			dt, _ := t.schema.TypeOf(domain, name)
			// Schema names are trusted; AddField only fails on duplicates.
			_ = d.AddField(NewField(name, dt))
		}
	}
}

// UserID returns the owning user identifier.
func (t *Twin) UserID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userID
}

// Metadata returns a copy of the twin's bookkeeping.
func (t *Twin) Metadata() Metadata {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metadata
}

// Schema returns the schema the twin was created with, or nil.
func (t *Twin) Schema() *Schema { return t.schema }

// SetOption adjusts a single SetValue call.
type SetOption func(*setOptions)

type setOptions struct {
	timestamp time.Time
	unit      string
	metadata  map[string]any
}

// WithTimestamp records the observation at ts instead of now.
func WithTimestamp(ts time.Time) SetOption {
	return func(o *setOptions) { o.timestamp = ts }
}

// WithUnit tags the observation with a unit.
func WithUnit(unit string) SetOption {
	return func(o *setOptions) { o.unit = unit }
}

// WithMetadata attaches side metadata (source, lab, device, ...).
func WithMetadata(m map[string]any) SetOption {
	return func(o *setOptions) { o.metadata = m }
}

// SetValue records value for domain.field, creating either on first use. A new
// field takes its type from the schema when one is declared, otherwise from the
// value itself.
func (t *Twin) SetValue(domain, field string, value any, opts ...SetOption) error {
	if err := validateName("domain", domain); err != nil {
		return err
	}
	if err := validateName("field", field); err != nil {
		return err
	}
	v, err := ValueOf(value)
	if err != nil {
		return errors.Wrapf(err, "%s.%s", domain, field)
	}

	o := setOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if o.timestamp.IsZero() {
		o.timestamp = t.now()
	}
	point := NewDataPoint(v, o.timestamp, o.unit, o.metadata)

	if d, ok := t.domains[domain]; ok {
		if f, ok := d.fields[field]; ok {
			if err := f.AddPoint(point); err != nil {
				return errors.Wrapf(err, "%s.%s", domain, field)
			}
			t.touch()
			return nil
		}
	}

	// New field: build it fully before attaching so a rejected value leaves
	// no trace.
	dt, ok := t.schema.TypeOf(domain, field)
	if !ok {
		dt = v.Kind()
	}
	f := NewField(field, dt)
	if err := f.AddPoint(point); err != nil {
		return errors.Wrapf(err, "%s.%s", domain, field)
	}
	if err := t.attachField(domain, f); err != nil {
		return err
	}
	t.touch()
	t.log.Debugw("field created",
		logger.FieldUserID, t.userID,
		logger.FieldDomain, domain,
		logger.FieldField, field,
		logger.FieldDataType, string(dt))
	return nil
}

// DeclareField adds an empty Missing field. It fails with ErrDuplicateField if
// the field exists.
func (t *Twin) DeclareField(domain, field string, dt DataType) error {
	if err := validateName("domain", domain); err != nil {
		return err
	}
	if err := validateName("field", field); err != nil {
		return err
	}
	dt, err := ParseDataType(string(dt))
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.attachField(domain, NewField(field, dt)); err != nil {
		return err
	}
	t.touch()
	return nil
}

// MarkMissing clears domain.field and sets it Missing.
func (t *Twin) MarkMissing(domain, field string) error {
	return t.mark(domain, field, (*Field).MarkMissing)
}

// MarkNotApplicable clears domain.field and sets it NotApplicable.
func (t *Twin) MarkNotApplicable(domain, field string) error {
	return t.mark(domain, field, (*Field).MarkNotApplicable)
}

// mark applies fn to an existing field. A field the schema declares but the
// twin does not yet hold is created first.
func (t *Twin) mark(domain, field string, fn func(*Field)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := t.fieldLocked(domain, field)
	if err != nil {
		dt, declared := t.schema.TypeOf(domain, field)
		if !declared || validateName("domain", domain) != nil {
			return err
		}
		f = NewField(field, dt)
		if err := t.attachField(domain, f); err != nil {
			return err
		}
	}
	fn(f)
	t.touch()
	return nil
}

// GetValue returns the latest point of domain.field, or the earliest when latest
// is false. It fails with ErrDomainNotFound, ErrFieldNotFound or
// ErrFieldNotPopulated.
func (t *Twin) GetValue(domain, field string, latest bool) (DataPoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f, err := t.fieldLocked(domain, field)
	if err != nil {
		return DataPoint{}, err
	}
	var (
		p  DataPoint
		ok bool
	)
	if latest {
		p, ok = f.Latest()
	} else {
		p, ok = f.Earliest()
	}
	if !ok {
		return DataPoint{}, errors.WithHintf(
			errors.Wrapf(errors.ErrFieldNotPopulated, "%s.%s is %s", domain, field, f.state),
			"record a value with SetValue first")
	}
	return p, nil
}

// GetTimeSeries returns the points of domain.field within [start, end]. A nil
// bound is open. Missing and not-applicable fields yield an empty slice.
func (t *Twin) GetTimeSeries(domain, field string, start, end *time.Time) ([]DataPoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f, err := t.fieldLocked(domain, field)
	if err != nil {
		return nil, err
	}
	return f.History(start, end)
}

// GetDomain returns a detached copy of the named domain. Mutating the copy does
// not affect the twin.
func (t *Twin) GetDomain(name string) (*Domain, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, ok := t.domains[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrDomainNotFound, "%q", name)
	}
	return d.clone(), nil
}

// Domains returns the domain names in lexical order.
func (t *Twin) Domains() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.domains))
}

// GetMissingFields lists fields in the Missing state. With a domain name the
// result holds bare field names; with "" it scans every domain and returns
// "domain.field" identifiers. Both are sorted.
func (t *Twin) GetMissingFields(domain string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if domain != "" {
		d, ok := t.domains[domain]
		if !ok {
			return nil, errors.Wrapf(errors.ErrDomainNotFound, "%q", domain)
		}
		return d.ListFields(StateMissing), nil
	}

	var out []string
	for _, name := range slices.Sorted(maps.Keys(t.domains)) {
		for _, f := range t.domains[name].ListFields(StateMissing) {
			out = append(out, name+"."+f)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// CalculateCompleteness returns each domain's completeness percentage.
func (t *Twin) CalculateCompleteness() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.domains))
	for name, d := range t.domains {
		out[name] = d.Completeness()
	}
	return out
}

// OverallCompleteness is the share of populated fields across all domains.
func (t *Twin) OverallCompleteness() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total, populated int
	for _, d := range t.domains {
		for _, f := range d.fields {
			total++
			if f.state == StatePopulated {
				populated++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(populated) / float64(total) * 100
}

func (t *Twin) fieldLocked(domain, field string) (*Field, error) {
	d, ok := t.domains[domain]
	if !ok {
		return nil, errors.Wrapf(errors.ErrDomainNotFound, "%q", domain)
	}
	f, ok := d.fields[field]
	if !ok {
		return nil, errors.Wrapf(errors.ErrFieldNotFound, "%s.%s", domain, field)
	}
	return f, nil
}

func (t *Twin) domainFor(name string) *Domain {
	d, ok := t.domains[name]
	if !ok {
		d = NewDomain(name)
		t.domains[name] = d
	}
	return d
}

// attachField adds f under domain. A new domain is attached only once it holds
// the field, so a rejected field leaves no empty domain behind.
func (t *Twin) attachField(domain string, f *Field) error {
	if d, ok := t.domains[domain]; ok {
		return d.AddField(f)
	}
	d := NewDomain(domain)
	if err := d.AddField(f); err != nil {
		return err
	}
	t.domains[domain] = d
	return nil
}

func (t *Twin) touch() {
	t.metadata.UpdatedAt = t.now().UTC()
}

// validateName rejects names that cannot round-trip through the dictionary form.
func validateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Wrapf(errors.ErrMissingRequiredField, "%s name is empty", kind)
	}
	if kind != "domain" {
		return nil
	}
	if name == keyUserID || name == keyMetadata {
		return errors.WithHintf(
			errors.Wrapf(errors.ErrInvalidDataFormat, "%q is a reserved key", name),
			"choose a domain name other than %q or %q", keyUserID, keyMetadata)
	}
	if strings.Contains(name, ".") {
		return errors.Wrapf(errors.ErrInvalidDataFormat, "domain name %q contains '.'", name)
	}
	return nil
}
