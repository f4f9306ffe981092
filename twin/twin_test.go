package twin

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/healthtwin/errors"
)

// fakeClock advances one minute per reading.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newTestTwin(t *testing.T, opts ...Option) *Twin {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	tw, err := New("user-1", opts...)
	require.NoError(t, err)
	return tw
}

func TestNew_RequiresUserID(t *testing.T) {
	_, err := New("  ")
	assert.True(t, errors.Is(err, errors.ErrMissingRequiredField))
}

func TestTwin_MissingFieldsAndCompleteness(t *testing.T) {
	tw := newTestTwin(t)
	require.NoError(t, tw.SetValue(DomainBiomarkers, "glucose_fasting", 95.0,
		WithTimestamp(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)), WithUnit("mg/dL")))
	require.NoError(t, tw.DeclareField(DomainBiomarkers, "hba1c", TypeNumber))

	missing, err := tw.GetMissingFields(DomainBiomarkers)
	require.NoError(t, err)
	assert.Equal(t, []string{"hba1c"}, missing)

	assert.Equal(t, 50.0, tw.CalculateCompleteness()[DomainBiomarkers])

	// Completeness follows the live state.
	require.NoError(t, tw.SetValue(DomainBiomarkers, "hba1c", 5.4, WithUnit("%")))
	assert.Equal(t, 100.0, tw.CalculateCompleteness()[DomainBiomarkers])
	missing, err = tw.GetMissingFields(DomainBiomarkers)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestTwin_LatestAndSeries(t *testing.T) {
	tw := newTestTwin(t)
	require.NoError(t, tw.SetValue(DomainDemographics, "weight", 75.0,
		WithTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), WithUnit("kg")))
	require.NoError(t, tw.SetValue(DomainDemographics, "weight", 73.5,
		WithTimestamp(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)), WithUnit("kg")))

	p, err := tw.GetValue(DomainDemographics, "weight", true)
	require.NoError(t, err)
	v, _ := p.Value().Float()
	assert.Equal(t, 73.5, v)
	assert.Equal(t, "kg", p.Unit())

	p, err = tw.GetValue(DomainDemographics, "weight", false)
	require.NoError(t, err)
	v, _ = p.Value().Float()
	assert.Equal(t, 75.0, v)

	series, err := tw.GetTimeSeries(DomainDemographics, "weight", nil, nil)
	require.NoError(t, err)
	require.Len(t, series, 2)
	first, _ := series[0].Value().Float()
	second, _ := series[1].Value().Float()
	assert.Equal(t, []float64{75.0, 73.5}, []float64{first, second})
}

func TestTwin_QueryErrors(t *testing.T) {
	tw := newTestTwin(t)
	require.NoError(t, tw.DeclareField(DomainBiomarkers, "hba1c", TypeNumber))

	_, err := tw.GetValue("genetics", "apoe", true)
	assert.True(t, errors.Is(err, errors.ErrDomainNotFound))
	assert.True(t, errors.IsNotFoundError(err))

	_, err = tw.GetValue(DomainBiomarkers, "ldl", true)
	assert.True(t, errors.Is(err, errors.ErrFieldNotFound))

	_, err = tw.GetValue(DomainBiomarkers, "hba1c", true)
	assert.True(t, errors.Is(err, errors.ErrFieldNotPopulated))

	series, err := tw.GetTimeSeries(DomainBiomarkers, "hba1c", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, series)

	start, end := day(10), day(1)
	_, err = tw.GetTimeSeries(DomainBiomarkers, "hba1c", &start, &end)
	assert.True(t, errors.Is(err, errors.ErrInvalidDateRange))

	_, err = tw.GetDomain("nope")
	assert.True(t, errors.Is(err, errors.ErrDomainNotFound))

	_, err = tw.GetMissingFields("nope")
	assert.True(t, errors.Is(err, errors.ErrDomainNotFound))
}

func TestTwin_RejectedFieldLeavesNoDomain(t *testing.T) {
	tw := newTestTwin(t)
	before := tw.Domains()

	for _, name := range []string{"", "  "} {
		err := tw.DeclareField("newdom", name, TypeNumber)
		assert.True(t, errors.Is(err, errors.ErrMissingRequiredField), "field %q", name)
	}
	assert.Error(t, tw.DeclareField("newdom", "score", DataType("decimal")))
	assert.Error(t, tw.SetValue("newdom", "", 1.0))
	assert.Error(t, tw.MarkMissing("newdom", ""))

	assert.Equal(t, before, tw.Domains())
	assert.NotContains(t, tw.ToDict(), "newdom")
	assert.NotContains(t, tw.CalculateCompleteness(), "newdom")

	require.NoError(t, tw.DeclareField("newdom", "score", TypeNumber))
	assert.Contains(t, tw.Domains(), "newdom")
}

func TestTwin_SetValueTyping(t *testing.T) {
	tw := newTestTwin(t, WithSchema(DefaultSchema("glucose_fasting")))

	t.Run("schema type wins over inference", func(t *testing.T) {
		err := tw.SetValue(DomainBiomarkers, "glucose_fasting", "high")
		assert.True(t, errors.Is(err, errors.ErrTypeMismatch))
		missing, err := tw.GetMissingFields(DomainBiomarkers)
		require.NoError(t, err)
		assert.Contains(t, missing, "glucose_fasting")
	})

	t.Run("domain default type for undeclared biomarker", func(t *testing.T) {
		err := tw.SetValue(DomainBiomarkers, "ferritin", true)
		assert.True(t, errors.Is(err, errors.ErrTypeMismatch))
		_, err = tw.GetValue(DomainBiomarkers, "ferritin", true)
		assert.True(t, errors.Is(err, errors.ErrFieldNotFound), "rejected value must not create the field")
	})

	t.Run("inferred from first value", func(t *testing.T) {
		require.NoError(t, tw.SetValue("custom", "notes", "feels fine"))
		err := tw.SetValue("custom", "notes", 3)
		assert.True(t, errors.Is(err, errors.ErrTypeMismatch))
	})

	t.Run("lists", func(t *testing.T) {
		require.NoError(t, tw.SetValue(DomainMedicalHistory, "conditions", []string{"asthma"}))
		p, err := tw.GetValue(DomainMedicalHistory, "conditions", true)
		require.NoError(t, err)
		assert.Equal(t, TypeList, p.Value().Kind())
	})

	t.Run("invalid names", func(t *testing.T) {
		assert.True(t, errors.Is(tw.SetValue("", "x", 1), errors.ErrMissingRequiredField))
		assert.True(t, errors.Is(tw.SetValue("metadata", "x", 1), errors.ErrInvalidDataFormat))
		assert.True(t, errors.Is(tw.SetValue("a.b", "x", 1), errors.ErrInvalidDataFormat))
		assert.True(t, errors.Is(tw.SetValue("custom", "", 1), errors.ErrMissingRequiredField))
	})
}

func TestTwin_SchemaDeclaresMissing(t *testing.T) {
	tw := newTestTwin(t, WithSchema(DefaultSchema("glucose_fasting", "hba1c")))

	missing, err := tw.GetMissingFields(DomainBiomarkers)
	require.NoError(t, err)
	assert.Equal(t, []string{"glucose_fasting", "hba1c"}, missing)

	all, err := tw.GetMissingFields("")
	require.NoError(t, err)
	assert.Contains(t, all, "biomarkers.hba1c")
	assert.Contains(t, all, "demographics.age")

	require.NoError(t, tw.MarkNotApplicable(DomainBiomarkers, "hba1c"))
	missing, err = tw.GetMissingFields(DomainBiomarkers)
	require.NoError(t, err)
	assert.Equal(t, []string{"glucose_fasting"}, missing)
	assert.Equal(t, 0.0, tw.CalculateCompleteness()[DomainBiomarkers])

	// Marking a schema field that a domain default covers creates it.
	require.NoError(t, tw.MarkMissing(DomainWearables, "resting_hr"))
	err = tw.MarkMissing("custom", "unknown")
	assert.True(t, errors.Is(err, errors.ErrDomainNotFound))
}

func TestSchema_RecognisedDomains(t *testing.T) {
	s := NewSchema()
	assert.True(t, s.IsKnownDomain(DomainGenetics))
	assert.False(t, s.IsKnownDomain("sleep_lab"))

	s.Recognise(DomainBiomarkers, "sleep_lab")
	assert.True(t, s.IsKnownDomain("sleep_lab"))
	assert.False(t, s.IsKnownDomain(DomainGenetics))

	var none *Schema
	assert.True(t, none.IsKnownDomain(DomainLifestyle))
	_, ok := none.TypeOf(DomainBiomarkers, "crp")
	assert.False(t, ok)
}

func TestTwin_GetDomainIsolation(t *testing.T) {
	tw := newTestTwin(t)
	require.NoError(t, tw.SetValue(DomainBiomarkers, "ldl", 110.0))
	require.NoError(t, tw.SetValue(DomainDemographics, "age", 45))

	d, err := tw.GetDomain(DomainBiomarkers)
	require.NoError(t, err)
	assert.Equal(t, []string{"ldl"}, d.ListFields())
	_, ok := d.GetField("age")
	assert.False(t, ok)

	f, _ := d.GetField("ldl")
	f.MarkMissing()
	_, err = tw.GetValue(DomainBiomarkers, "ldl", true)
	assert.NoError(t, err, "mutating a returned domain must not reach the twin")
}

func TestTwin_UpdatedAtRefreshed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tw := newTestTwin(t, WithClock(clock.Now))
	created := tw.Metadata()
	assert.Equal(t, CurrentVersion, created.Version)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	require.NoError(t, tw.SetValue(DomainLifestyle, "sleep_hours", 7.5))
	afterSet := tw.Metadata()
	assert.True(t, afterSet.UpdatedAt.After(created.UpdatedAt))

	require.NoError(t, tw.MarkMissing(DomainLifestyle, "sleep_hours"))
	assert.True(t, tw.Metadata().UpdatedAt.After(afterSet.UpdatedAt))
	assert.Equal(t, created.CreatedAt, tw.Metadata().CreatedAt)
}

func TestTwin_OverallCompleteness(t *testing.T) {
	tw := newTestTwin(t)
	assert.Equal(t, 0.0, tw.OverallCompleteness())
	require.NoError(t, tw.SetValue(DomainBiomarkers, "ldl", 110.0))
	require.NoError(t, tw.DeclareField(DomainDemographics, "age", TypeNumber))
	assert.Equal(t, 50.0, tw.OverallCompleteness())
}

func TestTwin_ConcurrentAccess(t *testing.T) {
	tw := newTestTwin(t)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = tw.SetValue(DomainWearables, "steps", float64(i), WithTimestamp(day(1).Add(time.Duration(w*100+i)*time.Second)))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tw.CalculateCompleteness()
				_, _ = tw.GetTimeSeries(DomainWearables, "steps", nil, nil)
				_, _ = tw.GetMissingFields("")
			}
		}()
	}
	wg.Wait()

	series, err := tw.GetTimeSeries(DomainWearables, "steps", nil, nil)
	require.NoError(t, err)
	assert.Len(t, series, 200)
}
