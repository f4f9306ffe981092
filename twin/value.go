package twin

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/teranos/healthtwin/errors"
)

// DataType is the declared type tag of a Field.
type DataType string

const (
	TypeNumber  DataType = "number"
	TypeString  DataType = "string"
	TypeBoolean DataType = "boolean"
	TypeList    DataType = "list"
)

// ParseDataType validates a type tag read from external input.
func ParseDataType(s string) (DataType, error) {
	switch dt := DataType(strings.ToLower(strings.TrimSpace(s))); dt {
	case TypeNumber, TypeString, TypeBoolean, TypeList:
		return dt, nil
	case "float", "int", "integer":
		return TypeNumber, nil
	case "str":
		return TypeString, nil
	case "bool":
		return TypeBoolean, nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidDataFormat, "unknown data type %q", s)
	}
}

// Value is a closed union over the kinds a Field may hold: number, string,
// boolean, or a list of those primitives. The zero Value is invalid.
type Value struct {
	kind  DataType
	num   float64
	str   string
	flag  bool
	items []Value
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: TypeNumber, num: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: TypeString, str: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: TypeBoolean, flag: b} }

// List returns a list Value. Elements must be primitives; nested lists are
// rejected with ErrInvalidDataFormat.
func List(items ...Value) (Value, error) {
	copied := make([]Value, len(items))
	for i, item := range items {
		if !item.IsValid() || item.kind == TypeList {
			return Value{}, errors.Wrapf(errors.ErrInvalidDataFormat, "list element %d must be a number, string or boolean", i)
		}
		copied[i] = item
	}
	return Value{kind: TypeList, items: copied}, nil
}

// ValueOf converts a native Go value into a Value. Accepted inputs are Value,
// every integer and float type, json.Number, string, bool, and slices of those.
func ValueOf(v any) (Value, error) {
	switch typed := v.(type) {
	case Value:
		if !typed.IsValid() {
			return Value{}, errors.Wrap(errors.ErrInvalidDataFormat, "zero value")
		}
		return typed, nil
	case float64:
		return numberOf(typed)
	case float32:
		return numberOf(float64(typed))
	case int:
		return Number(float64(typed)), nil
	case int8:
		return Number(float64(typed)), nil
	case int16:
		return Number(float64(typed)), nil
	case int32:
		return Number(float64(typed)), nil
	case int64:
		return Number(float64(typed)), nil
	case uint:
		return Number(float64(typed)), nil
	case uint8:
		return Number(float64(typed)), nil
	case uint16:
		return Number(float64(typed)), nil
	case uint32:
		return Number(float64(typed)), nil
	case uint64:
		return Number(float64(typed)), nil
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return Value{}, errors.Wrapf(errors.ErrInvalidDataFormat, "number %q", typed.String())
		}
		return numberOf(f)
	case string:
		return String(typed), nil
	case bool:
		return Bool(typed), nil
	case []any:
		return listOf(len(typed), func(i int) any { return typed[i] })
	case []float64:
		return listOf(len(typed), func(i int) any { return typed[i] })
	case []int:
		return listOf(len(typed), func(i int) any { return typed[i] })
	case []string:
		return listOf(len(typed), func(i int) any { return typed[i] })
	case []bool:
		return listOf(len(typed), func(i int) any { return typed[i] })
	case []Value:
		return List(typed...)
	case nil:
		return Value{}, errors.Wrap(errors.ErrInvalidDataFormat, "nil value")
	default:
		return Value{}, errors.Wrapf(errors.ErrInvalidDataFormat, "unsupported value type %T", v)
	}
}

func numberOf(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, errors.Wrapf(errors.ErrInvalidDataFormat, "non-finite number %v", f)
	}
	return Number(f), nil
}

func listOf(n int, at func(int) any) (Value, error) {
	items := make([]Value, n)
	for i := 0; i < n; i++ {
		item, err := ValueOf(at(i))
		if err != nil {
			return Value{}, errors.Wrapf(err, "list element %d", i)
		}
		items[i] = item
	}
	return List(items...)
}

// Kind returns the type tag of the value.
func (v Value) Kind() DataType { return v.kind }

// IsValid reports whether v was constructed through one of the constructors.
func (v Value) IsValid() bool { return v.kind != "" }

// Float returns the numeric payload.
func (v Value) Float() (float64, bool) { return v.num, v.kind == TypeNumber }

// Str returns the string payload.
func (v Value) Str() (string, bool) { return v.str, v.kind == TypeString }

// Boolean returns the boolean payload.
func (v Value) Boolean() (bool, bool) { return v.flag, v.kind == TypeBoolean }

// Items returns a copy of the list payload.
func (v Value) Items() []Value {
	if v.kind != TypeList {
		return nil
	}
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out
}

// Interface returns the JSON-compatible native form: float64, string, bool or []any.
func (v Value) Interface() any {
	switch v.kind {
	case TypeNumber:
		return v.num
	case TypeString:
		return v.str
	case TypeBoolean:
		return v.flag
	case TypeList:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports structural equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case TypeNumber:
		return v.num == other.num
	case TypeString:
		return v.str == other.str
	case TypeBoolean:
		return v.flag == other.flag
	case TypeList:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value for human-readable output.
func (v Value) String() string {
	switch v.kind {
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case TypeString:
		return v.str
	case TypeBoolean:
		if v.flag {
			return "yes"
		}
		return "no"
	case TypeList:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return strings.Join(parts, ", ")
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes the native form.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.IsValid() {
		return nil, errors.Wrap(errors.ErrInvalidDataFormat, "marshal zero value")
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON scalar or array of scalars.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return errors.Wrap(errors.ErrInvalidDataFormat, err.Error())
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// coerce converts raw into a Value of the declared type. Used by FromDict where
// JSON decoding has already flattened numbers to float64 or json.Number.
func coerce(raw any, dt DataType) (Value, error) {
	v, err := ValueOf(raw)
	if err != nil {
		return Value{}, err
	}
	if v.kind != dt {
		return Value{}, errors.Wrapf(errors.ErrTypeMismatch, "expected %s, got %s", dt, v.kind)
	}
	return v, nil
}
