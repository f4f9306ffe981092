package twin

import (
	"sort"
	"time"

	"github.com/teranos/healthtwin/errors"
)

// FieldState is the explicit state of a Field.
type FieldState string

const (
	StatePopulated     FieldState = "populated"
	StateMissing       FieldState = "missing"
	StateNotApplicable FieldState = "not_applicable"
)

// ParseFieldState validates a state read from external input.
func ParseFieldState(s string) (FieldState, error) {
	switch st := FieldState(s); st {
	case StatePopulated, StateMissing, StateNotApplicable:
		return st, nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidDataFormat, "unknown field state %q", s)
	}
}

// Field is a named, typed slot with an explicit state and a chronologically
// ordered history. The state is Populated exactly when the history is non-empty.
type Field struct {
	name     string
	dataType DataType
	state    FieldState
	history  []DataPoint

	// onChange is set by the owning Domain to invalidate its completeness cache.
	onChange func()
}

// NewField creates an empty field in the Missing state.
func NewField(name string, dataType DataType) *Field {
	return &Field{
		name:     name,
		dataType: dataType,
		state:    StateMissing,
	}
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// DataType returns the declared type tag.
func (f *Field) DataType() DataType { return f.dataType }

// State returns the current state.
func (f *Field) State() FieldState { return f.state }

// Len returns the number of recorded points.
func (f *Field) Len() int { return len(f.history) }

// AddValue records value at timestamp. It fails with ErrTypeMismatch when the
// value's kind differs from the declared type and with ErrInvalidTimestamp for a
// zero timestamp.
func (f *Field) AddValue(value Value, timestamp time.Time, unit string) error {
	return f.AddPoint(NewDataPoint(value, timestamp, unit, nil))
}

// AddPoint inserts a prebuilt point, keeping history sorted by timestamp. Points
// sharing a timestamp keep their insertion order.
func (f *Field) AddPoint(p DataPoint) error {
	if !p.value.IsValid() {
		return errors.Wrapf(errors.ErrInvalidDataFormat, "field %s: zero value", f.name)
	}
	if p.value.Kind() != f.dataType {
		return errors.WithHintf(
			errors.Wrapf(errors.ErrTypeMismatch, "field %s declared %s, got %s", f.name, f.dataType, p.value.Kind()),
			"the type of %s was fixed when it was first declared", f.name)
	}
	if p.timestamp.IsZero() {
		return errors.Wrapf(errors.ErrInvalidTimestamp, "field %s: zero timestamp", f.name)
	}

	// Upper bound keeps equal timestamps in insertion order.
	idx := sort.Search(len(f.history), func(i int) bool {
		return f.history[i].timestamp.After(p.timestamp)
	})
	f.history = append(f.history, DataPoint{})
	copy(f.history[idx+1:], f.history[idx:])
	f.history[idx] = p

	f.state = StatePopulated
	f.changed()
	return nil
}

// MarkMissing clears the history and sets the Missing state.
func (f *Field) MarkMissing() {
	f.history = nil
	f.state = StateMissing
	f.changed()
}

// MarkNotApplicable clears the history and sets the NotApplicable state. A
// later AddValue moves the field back to Populated.
func (f *Field) MarkNotApplicable() {
	f.history = nil
	f.state = StateNotApplicable
	f.changed()
}

// Latest returns the point with the greatest timestamp; on ties the one
// inserted last.
func (f *Field) Latest() (DataPoint, bool) {
	if len(f.history) == 0 {
		return DataPoint{}, false
	}
	return f.history[len(f.history)-1], true
}

// Earliest returns the point with the smallest timestamp.
func (f *Field) Earliest() (DataPoint, bool) {
	if len(f.history) == 0 {
		return DataPoint{}, false
	}
	return f.history[0], true
}

// History returns the points whose timestamp lies in [start, end]. A nil bound
// is unrestricted. It fails with ErrInvalidDateRange when start is after end.
func (f *Field) History(start, end *time.Time) ([]DataPoint, error) {
	if start != nil && end != nil && start.After(*end) {
		return nil, errors.Wrapf(errors.ErrInvalidDateRange, "start %s is after end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	lo := 0
	if start != nil {
		lo = sort.Search(len(f.history), func(i int) bool {
			return !f.history[i].timestamp.Before(*start)
		})
	}
	hi := len(f.history)
	if end != nil {
		hi = sort.Search(len(f.history), func(i int) bool {
			return f.history[i].timestamp.After(*end)
		})
	}
	if lo >= hi {
		return []DataPoint{}, nil
	}

	out := make([]DataPoint, hi-lo)
	copy(out, f.history[lo:hi])
	return out, nil
}

// Points returns the full history in chronological order.
func (f *Field) Points() []DataPoint {
	out := make([]DataPoint, len(f.history))
	copy(out, f.history)
	return out
}

// Recent returns up to n of the most recent points, oldest first.
func (f *Field) Recent(n int) []DataPoint {
	if n <= 0 {
		return nil
	}
	if n > len(f.history) {
		n = len(f.history)
	}
	out := make([]DataPoint, n)
	copy(out, f.history[len(f.history)-n:])
	return out
}

func (f *Field) changed() {
	if f.onChange != nil {
		f.onChange()
	}
}

// clone returns a detached deep copy. DataPoints are immutable, so copying the
// slice is enough.
func (f *Field) clone() *Field {
	return &Field{
		name:     f.name,
		dataType: f.dataType,
		state:    f.state,
		history:  f.Points(),
	}
}
