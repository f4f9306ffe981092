package twin

import (
	"maps"
	"slices"
	"sync"

	"github.com/teranos/healthtwin/errors"
)

// Domain is a named set of fields, e.g. "biomarkers".
type Domain struct {
	name   string
	fields map[string]*Field

	// Completeness is recomputed lazily after any field mutation. The mutex
	// only guards the cache so concurrent readers may fill it.
	cacheMu    sync.Mutex
	cacheValid bool
	cached     float64
}

// NewDomain creates an empty domain.
func NewDomain(name string) *Domain {
	return &Domain{
		name:   name,
		fields: make(map[string]*Field),
	}
}

// Name returns the domain name.
func (d *Domain) Name() string { return d.name }

// Len returns the number of fields.
func (d *Domain) Len() int { return len(d.fields) }

// AddField attaches field under its name. It fails with ErrDuplicateField if the
// name is taken.
func (d *Domain) AddField(field *Field) error {
	if field == nil {
		return errors.Wrap(errors.ErrInvalidDataFormat, "nil field")
	}
	if err := validateName("field", field.name); err != nil {
		return err
	}
	if _, exists := d.fields[field.name]; exists {
		return errors.Wrapf(errors.ErrDuplicateField, "%s.%s", d.name, field.name)
	}
	field.onChange = d.invalidate
	d.fields[field.name] = field
	d.invalidate()
	return nil
}

// GetField returns the named field.
func (d *Domain) GetField(name string) (*Field, bool) {
	f, ok := d.fields[name]
	return f, ok
}

// ListFields returns field names in lexical order, restricted to the given
// states when any are supplied.
func (d *Domain) ListFields(states ...FieldState) []string {
	names := make([]string, 0, len(d.fields))
	for name, f := range d.fields {
		if len(states) > 0 && !slices.Contains(states, f.state) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Completeness returns the percentage of fields in the Populated state, in
// [0, 100]. An empty domain is 0% complete.
func (d *Domain) Completeness() float64 {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if d.cacheValid {
		return d.cached
	}

	total := len(d.fields)
	if total == 0 {
		d.cached = 0
	} else {
		populated := 0
		for _, f := range d.fields {
			if f.state == StatePopulated {
				populated++
			}
		}
		d.cached = float64(populated) / float64(total) * 100
	}
	d.cacheValid = true
	return d.cached
}

func (d *Domain) invalidate() {
	d.cacheMu.Lock()
	d.cacheValid = false
	d.cacheMu.Unlock()
}

// clone returns a detached deep copy of the domain and its fields.
func (d *Domain) clone() *Domain {
	out := NewDomain(d.name)
	for _, name := range slices.Sorted(maps.Keys(d.fields)) {
		f := d.fields[name].clone()
		f.onChange = out.invalidate
		out.fields[name] = f
	}
	return out
}
