package twin

import (
	"encoding/json"
	"maps"
	"reflect"
	"time"
)

// DataPoint is one timestamped, unit-tagged observation. It is immutable: all
// accessors return copies.
type DataPoint struct {
	value     Value
	timestamp time.Time
	unit      string
	metadata  map[string]any
}

// NewDataPoint builds a point. Timestamps are normalised to UTC so that
// serialised and in-memory points compare equal.
func NewDataPoint(value Value, timestamp time.Time, unit string, metadata map[string]any) DataPoint {
	return DataPoint{
		value:     value,
		timestamp: timestamp.UTC(),
		unit:      unit,
		metadata:  cloneMetadata(metadata),
	}
}

// Value returns the observed value.
func (p DataPoint) Value() Value { return p.value }

// Timestamp returns when the observation was made.
func (p DataPoint) Timestamp() time.Time { return p.timestamp }

// Unit returns the unit, or "" when none was recorded.
func (p DataPoint) Unit() string { return p.unit }

// Metadata returns a copy of the side metadata, or nil.
func (p DataPoint) Metadata() map[string]any { return cloneMetadata(p.metadata) }

// Equal reports whether two points carry the same value, instant, unit and metadata.
func (p DataPoint) Equal(other DataPoint) bool {
	if !p.value.Equal(other.value) || !p.timestamp.Equal(other.timestamp) || p.unit != other.unit {
		return false
	}
	if len(p.metadata) != len(other.metadata) {
		return false
	}
	for k, v := range p.metadata {
		ov, ok := other.metadata[k]
		if !ok || !jsonEqual(v, ov) {
			return false
		}
	}
	return true
}

// cloneMetadata deep copies JSON-compatible maps so callers never share state
// with a stored point.
func cloneMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneJSON(v)
	}
	return out
}

func cloneJSON(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := maps.Clone(typed)
		for k, inner := range out {
			out[k] = cloneJSON(inner)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = cloneJSON(inner)
		}
		return out
	default:
		return v
	}
}

func jsonEqual(a, b any) bool {
	switch ta := a.(type) {
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, v := range ta {
			if !jsonEqual(v, tb[k]) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !jsonEqual(ta[i], tb[i]) {
				return false
			}
		}
		return true
	default:
		if fa, ok := toFloat(a); ok {
			fb, ok := toFloat(b)
			return ok && fa == fb
		}
		return reflect.DeepEqual(a, b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
