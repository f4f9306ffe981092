package twin

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/healthtwin/errors"
)

func populatedTwin(t *testing.T) *Twin {
	t.Helper()
	tw := newTestTwin(t)
	require.NoError(t, tw.SetValue(DomainBiomarkers, "glucose_fasting", 95.0,
		WithTimestamp(day(10)), WithUnit("mg/dL"), WithMetadata(map[string]any{"lab": "quest"})))
	require.NoError(t, tw.SetValue(DomainBiomarkers, "glucose_fasting", 101.0,
		WithTimestamp(day(3)), WithUnit("mg/dL")))
	require.NoError(t, tw.SetValue(DomainBiomarkers, "glucose_fasting", 99.0,
		WithTimestamp(day(3)), WithUnit("mg/dL")))
	require.NoError(t, tw.DeclareField(DomainBiomarkers, "hba1c", TypeNumber))
	require.NoError(t, tw.SetValue(DomainDemographics, "sex", "female", WithTimestamp(day(1))))
	require.NoError(t, tw.SetValue(DomainMedicalHistory, "conditions", []string{"asthma", "migraine"}, WithTimestamp(day(2))))
	require.NoError(t, tw.SetValue(DomainLifestyle, "smoker", false, WithTimestamp(day(2))))
	require.NoError(t, tw.DeclareField(DomainLifestyle, "pregnancies", TypeNumber))
	require.NoError(t, tw.MarkNotApplicable(DomainLifestyle, "pregnancies"))
	return tw
}

func TestDict_RoundTrip(t *testing.T) {
	orig := populatedTwin(t)
	dict := orig.ToDict()

	loaded, err := FromDict(dict, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	assert.Equal(t, dict, loaded.ToDict())
	assert.Equal(t, orig.UserID(), loaded.UserID())
	assert.Equal(t, orig.Domains(), loaded.Domains())

	for _, domain := range orig.Domains() {
		od, err := orig.GetDomain(domain)
		require.NoError(t, err)
		ld, err := loaded.GetDomain(domain)
		require.NoError(t, err)
		assert.Equal(t, od.ListFields(), ld.ListFields())
		for _, name := range od.ListFields() {
			of, _ := od.GetField(name)
			lf, _ := ld.GetField(name)
			assert.Equal(t, of.State(), lf.State(), "%s.%s", domain, name)
			op, lp := of.Points(), lf.Points()
			require.Len(t, lp, len(op))
			for i := range op {
				assert.True(t, op[i].Equal(lp[i]), "%s.%s[%d]", domain, name, i)
			}
		}
	}

	om, lm := orig.Metadata(), loaded.Metadata()
	assert.True(t, om.CreatedAt.Equal(lm.CreatedAt))
	assert.True(t, om.UpdatedAt.Equal(lm.UpdatedAt))
	assert.Equal(t, om.Version, lm.Version)
}

func TestDict_TiesKeepOrderThroughRoundTrip(t *testing.T) {
	loaded, err := FromDict(populatedTwin(t).ToDict())
	require.NoError(t, err)
	series, err := loaded.GetTimeSeries(DomainBiomarkers, "glucose_fasting", nil, nil)
	require.NoError(t, err)
	require.Len(t, series, 3)
	var got []float64
	for _, p := range series {
		v, _ := p.Value().Float()
		got = append(got, v)
	}
	assert.Equal(t, []float64{101, 99, 95}, got)
}

func TestDict_JSONRoundTrip(t *testing.T) {
	orig := populatedTwin(t)
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Twin
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, orig.ToDict(), back.ToDict())
}

func TestFromDict_StateFromData(t *testing.T) {
	doc := map[string]any{
		"user_id": "u-2",
		"biomarkers": map[string]any{
			"claims_populated": map[string]any{"state": "populated", "data_type": "number", "values": []any{}},
			"claims_missing": map[string]any{
				"state": "missing", "data_type": "number",
				"values": []any{map[string]any{"value": 1.0, "timestamp": "2024-01-01T00:00:00Z"}},
			},
			"na": map[string]any{"state": "not_applicable", "data_type": "string"},
		},
	}
	tw, err := FromDict(doc)
	require.NoError(t, err)

	d, err := tw.GetDomain("biomarkers")
	require.NoError(t, err)
	f, _ := d.GetField("claims_populated")
	assert.Equal(t, StateMissing, f.State())
	f, _ = d.GetField("claims_missing")
	assert.Equal(t, StatePopulated, f.State())
	f, _ = d.GetField("na")
	assert.Equal(t, StateNotApplicable, f.State())

	assert.Equal(t, CurrentVersion, tw.Metadata().Version)
}

func TestFromDict_SchemaFieldsAbsentAreMissing(t *testing.T) {
	doc := map[string]any{
		"user_id": "u-3",
		"biomarkers": map[string]any{
			"hba1c": map[string]any{"state": "populated", "data_type": "number",
				"values": []any{map[string]any{"value": 5.6, "timestamp": "2024-02-01T00:00:00Z", "unit": "%"}}},
		},
	}
	tw, err := FromDict(doc, WithSchema(DefaultSchema("hba1c", "ldl")))
	require.NoError(t, err)
	missing, err := tw.GetMissingFields(DomainBiomarkers)
	require.NoError(t, err)
	assert.Equal(t, []string{"ldl"}, missing)
}

func TestFromDict_Errors(t *testing.T) {
	field := func(m map[string]any) map[string]any {
		return map[string]any{"user_id": "u", "biomarkers": map[string]any{"x": m}}
	}
	tests := []struct {
		name string
		doc  map[string]any
		want error
	}{
		{"nil", nil, errors.ErrInvalidDataFormat},
		{"no user", map[string]any{}, errors.ErrMissingRequiredField},
		{"domain not object", map[string]any{"user_id": "u", "biomarkers": 3}, errors.ErrInvalidDataFormat},
		{"no data type", field(map[string]any{"state": "missing"}), errors.ErrMissingRequiredField},
		{"unknown state", field(map[string]any{"state": "maybe", "data_type": "number"}), errors.ErrInvalidDataFormat},
		{"value type mismatch", field(map[string]any{"data_type": "number",
			"values": []any{map[string]any{"value": "high", "timestamp": "2024-01-01T00:00:00Z"}}}), errors.ErrTypeMismatch},
		{"bad timestamp", field(map[string]any{"data_type": "number",
			"values": []any{map[string]any{"value": 1.0, "timestamp": "yesterday"}}}), errors.ErrInvalidTimestamp},
		{"no timestamp", field(map[string]any{"data_type": "number",
			"values": []any{map[string]any{"value": 1.0}}}), errors.ErrMissingRequiredField},
		{"future major version", map[string]any{"user_id": "u", "metadata": map[string]any{
			"created_at": "2024-01-01T00:00:00Z", "updated_at": "2024-01-01T00:00:00Z", "version": "2.0.0"}}, errors.ErrInvalidDataFormat},
		{"garbage version", map[string]any{"user_id": "u", "metadata": map[string]any{
			"created_at": "2024-01-01T00:00:00Z", "updated_at": "2024-01-01T00:00:00Z", "version": "one"}}, errors.ErrInvalidDataFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw, err := FromDict(tt.doc)
			assert.Nil(t, tw)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFromDict_AcceptsTimeValues(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	tw, err := FromDict(map[string]any{
		"user_id": "u",
		"wearables": map[string]any{"steps": map[string]any{"data_type": "number",
			"values": []any{map[string]any{"value": 8000, "timestamp": ts}}}},
	})
	require.NoError(t, err)
	p, err := tw.GetValue("wearables", "steps", true)
	require.NoError(t, err)
	assert.True(t, p.Timestamp().Equal(ts))
}

func TestReplace_LeavesTwinOnFailure(t *testing.T) {
	tw := populatedTwin(t)
	before := tw.ToDict()

	err := tw.Replace(map[string]any{"user_id": "user-1", "biomarkers": "broken"})
	require.Error(t, err)
	assert.Equal(t, before, tw.ToDict())

	require.NoError(t, tw.Replace(map[string]any{"user_id": "user-9"}))
	assert.Equal(t, "user-9", tw.UserID())
	assert.Empty(t, tw.Domains())
}

func TestReplace_Concurrent(t *testing.T) {
	tw := populatedTwin(t)
	docs := []map[string]any{populatedTwin(t).ToDict(), {"user_id": "user-1"}}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tw.Replace(docs[i%len(docs)]))
			_ = tw.CalculateCompleteness()
		}()
	}
	wg.Wait()
	assert.Equal(t, "user-1", tw.UserID())
}
