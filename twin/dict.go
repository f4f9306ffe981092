package twin

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
)

// supportedVersions is the range of document versions FromDict accepts.
var supportedVersions = mustConstraint("^1.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ToDict renders the twin in its canonical dictionary shape:
//
//	{user_id, metadata: {created_at, updated_at, version}, <domain>: {<field>: {state, data_type, values}}}
//
// Timestamps are RFC 3339 strings in UTC with nanosecond precision.
func (t *Twin) ToDict() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := map[string]any{
		keyUserID: t.userID,
		keyMetadata: map[string]any{
			"created_at": formatTime(t.metadata.CreatedAt),
			"updated_at": formatTime(t.metadata.UpdatedAt),
			"version":    t.metadata.Version,
		},
	}
	for name, d := range t.domains {
		fields := make(map[string]any, len(d.fields))
		for fname, f := range d.fields {
			fields[fname] = fieldToDict(f)
		}
		out[name] = fields
	}
	return out
}

func fieldToDict(f *Field) map[string]any {
	values := make([]any, 0, len(f.history))
	for _, p := range f.history {
		entry := map[string]any{
			"value":     p.value.Interface(),
			"timestamp": formatTime(p.timestamp),
		}
		if p.unit != "" {
			entry["unit"] = p.unit
		}
		if len(p.metadata) > 0 {
			entry["metadata"] = cloneMetadata(p.metadata)
		}
		values = append(values, entry)
	}
	return map[string]any{
		"state":     string(f.state),
		"data_type": string(f.dataType),
		"values":    values,
	}
}

// FromDict rebuilds a twin from its dictionary shape. State is reconstructed
// strictly from the data: a field with values is Populated whatever its stated
// state, a "populated" field without values is Missing, and fields a schema
// declares but the data omits are Missing. Either the whole document loads or
// an error is returned.
func FromDict(data map[string]any, opts ...Option) (*Twin, error) {
	if data == nil {
		return nil, errors.Wrap(errors.ErrInvalidDataFormat, "nil document")
	}
	userID, ok := data[keyUserID].(string)
	if !ok || userID == "" {
		return nil, errors.Wrap(errors.ErrMissingRequiredField, keyUserID)
	}

	t, err := newTwin(userID, opts...)
	if err != nil {
		return nil, err
	}

	if raw, present := data[keyMetadata]; present {
		meta, err := parseMetadata(raw)
		if err != nil {
			return nil, err
		}
		t.metadata = meta
	}

	for _, name := range slices.Sorted(maps.Keys(data)) {
		if name == keyUserID || name == keyMetadata {
			continue
		}
		if err := validateName("domain", name); err != nil {
			return nil, err
		}
		rawDomain, ok := data[name].(map[string]any)
		if !ok {
			return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "domain %q: expected object, got %T", name, data[name])
		}
		d := t.domainFor(name)
		for _, fname := range slices.Sorted(maps.Keys(rawDomain)) {
			f, err := fieldFromDict(fname, rawDomain[fname])
			if err != nil {
				return nil, errors.Wrapf(err, "%s.%s", name, fname)
			}
			if err := d.AddField(f); err != nil {
				return nil, err
			}
		}
	}

	t.declareSchema()
	t.log.Debugw("twin loaded",
		logger.FieldUserID, userID,
		logger.FieldVersion, t.metadata.Version,
		logger.FieldCount, len(t.domains))
	return t, nil
}

func parseMetadata(raw any) (Metadata, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Metadata{}, errors.Wrapf(errors.ErrInvalidDataFormat, "metadata: expected object, got %T", raw)
	}
	created, err := parseTime(m["created_at"])
	if err != nil {
		return Metadata{}, errors.Wrap(err, "metadata.created_at")
	}
	updated, err := parseTime(m["updated_at"])
	if err != nil {
		return Metadata{}, errors.Wrap(err, "metadata.updated_at")
	}

	version, _ := m["version"].(string)
	if version == "" {
		return Metadata{}, errors.Wrap(errors.ErrMissingRequiredField, "metadata.version")
	}
	if err := CheckVersion(version); err != nil {
		return Metadata{}, err
	}
	return Metadata{CreatedAt: created, UpdatedAt: updated, Version: version}, nil
}

// CheckVersion reports whether documents written at version can be read.
func CheckVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidDataFormat, "metadata.version %q: %v", version, err)
	}
	if !supportedVersions.Check(v) {
		return errors.WithHintf(
			errors.Wrapf(errors.ErrInvalidDataFormat, "unsupported document version %s", version),
			"this build reads versions %s", supportedVersions)
	}
	return nil
}

func fieldFromDict(name string, raw any) (*Field, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "expected object, got %T", raw)
	}

	typeTag, _ := m["data_type"].(string)
	if typeTag == "" {
		return nil, errors.Wrap(errors.ErrMissingRequiredField, "data_type")
	}
	dt, err := ParseDataType(typeTag)
	if err != nil {
		return nil, err
	}

	state := StateMissing
	if s, ok := m["state"].(string); ok {
		if state, err = ParseFieldState(s); err != nil {
			return nil, err
		}
	} else if m["state"] != nil {
		return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "state: expected string, got %T", m["state"])
	}

	var values []any
	switch vs := m["values"].(type) {
	case nil:
	case []any:
		values = vs
	case []map[string]any:
		for _, v := range vs {
			values = append(values, v)
		}
	default:
		return nil, errors.Wrapf(errors.ErrInvalidDataFormat, "values: expected list, got %T", m["values"])
	}

	f := NewField(name, dt)
	for i, rawPoint := range values {
		p, err := pointFromDict(rawPoint, dt)
		if err != nil {
			return nil, errors.Wrapf(err, "values[%d]", i)
		}
		if err := f.AddPoint(p); err != nil {
			return nil, errors.Wrapf(err, "values[%d]", i)
		}
	}

	if f.Len() == 0 && state == StateNotApplicable {
		f.MarkNotApplicable()
	}
	return f, nil
}

func pointFromDict(raw any, dt DataType) (DataPoint, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return DataPoint{}, errors.Wrapf(errors.ErrInvalidDataFormat, "expected object, got %T", raw)
	}
	v, err := coerce(m["value"], dt)
	if err != nil {
		return DataPoint{}, errors.Wrap(err, "value")
	}
	ts, err := parseTime(m["timestamp"])
	if err != nil {
		return DataPoint{}, errors.Wrap(err, "timestamp")
	}

	var unit string
	if u, present := m["unit"]; present && u != nil {
		if unit, ok = u.(string); !ok {
			return DataPoint{}, errors.Wrapf(errors.ErrInvalidDataFormat, "unit: expected string, got %T", u)
		}
	}

	var meta map[string]any
	if md, present := m["metadata"]; present && md != nil {
		if meta, ok = md.(map[string]any); !ok {
			return DataPoint{}, errors.Wrapf(errors.ErrInvalidDataFormat, "metadata: expected object, got %T", md)
		}
	}
	return NewDataPoint(v, ts, unit, meta), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 strings and time.Time values (as produced by YAML
// and TOML decoders).
func parseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, errors.Wrap(errors.ErrInvalidTimestamp, "zero time")
		}
		return v.UTC(), nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, errors.WithHint(
				errors.Wrapf(errors.ErrInvalidTimestamp, "%q", v),
				"timestamps are RFC 3339, e.g. 2024-01-10T08:30:00Z")
		}
		return ts.UTC(), nil
	case nil:
		return time.Time{}, errors.Wrap(errors.ErrMissingRequiredField, "timestamp")
	default:
		return time.Time{}, errors.Wrapf(errors.ErrInvalidTimestamp, "unexpected %T", raw)
	}
}

// MarshalJSON encodes ToDict.
func (t *Twin) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToDict())
}

// UnmarshalJSON replaces the twin's contents with the decoded document.
func (t *Twin) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrap(errors.ErrInvalidDataFormat, err.Error())
	}
	return t.Replace(doc)
}

// Replace loads data and swaps it in as this twin's contents under the write
// lock. The twin is unchanged if data fails to load.
func (t *Twin) Replace(data map[string]any) error {
	t.mu.RLock()
	schema, now, log := t.schema, t.now, t.log
	t.mu.RUnlock()

	loaded, err := FromDict(data, WithSchema(schema), WithClock(now), WithLogger(log))
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.userID = loaded.userID
	t.metadata = loaded.metadata
	t.domains = loaded.domains
	t.schema = loaded.schema
	t.now = loaded.now
	t.log = loaded.log
	return nil
}
