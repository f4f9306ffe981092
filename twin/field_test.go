package twin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/healthtwin/errors"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 9, 0, 0, 0, time.UTC)
}

func TestField_AddValueOrdersHistory(t *testing.T) {
	f := NewField("weight", TypeNumber)
	require.Equal(t, StateMissing, f.State())

	for _, d := range []int{15, 1, 10, 3} {
		require.NoError(t, f.AddValue(Number(float64(d)), day(d), "kg"))
	}

	assert.Equal(t, StatePopulated, f.State())
	points := f.Points()
	require.Len(t, points, 4)
	for i := 1; i < len(points); i++ {
		assert.False(t, points[i].Timestamp().Before(points[i-1].Timestamp()),
			"history out of order at %d", i)
	}

	latest, ok := f.Latest()
	require.True(t, ok)
	assert.True(t, latest.Timestamp().Equal(day(15)))

	earliest, ok := f.Earliest()
	require.True(t, ok)
	assert.True(t, earliest.Timestamp().Equal(day(1)))
}

func TestField_LatestTieBreaksOnInsertionOrder(t *testing.T) {
	f := NewField("glucose", TypeNumber)
	require.NoError(t, f.AddValue(Number(90), day(5), "mg/dL"))
	require.NoError(t, f.AddValue(Number(95), day(5), "mg/dL"))

	latest, ok := f.Latest()
	require.True(t, ok)
	v, _ := latest.Value().Float()
	assert.Equal(t, 95.0, v)
}

func TestField_AddValueRejections(t *testing.T) {
	t.Run("type mismatch", func(t *testing.T) {
		f := NewField("weight", TypeNumber)
		err := f.AddValue(String("heavy"), day(1), "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrTypeMismatch))
		assert.Equal(t, StateMissing, f.State())
		assert.Zero(t, f.Len())
		assert.NotEmpty(t, errors.GetAllHints(err))
	})

	t.Run("zero timestamp", func(t *testing.T) {
		f := NewField("weight", TypeNumber)
		err := f.AddValue(Number(70), time.Time{}, "kg")
		assert.True(t, errors.Is(err, errors.ErrInvalidTimestamp))
		assert.Equal(t, StateMissing, f.State())
	})

	t.Run("zero value", func(t *testing.T) {
		f := NewField("weight", TypeNumber)
		err := f.AddValue(Value{}, day(1), "kg")
		assert.True(t, errors.Is(err, errors.ErrInvalidDataFormat))
	})
}

func TestField_StateTransitions(t *testing.T) {
	f := NewField("smoking_status", TypeString)
	require.NoError(t, f.AddValue(String("never"), day(1), ""))
	assert.Equal(t, StatePopulated, f.State())

	f.MarkNotApplicable()
	assert.Equal(t, StateNotApplicable, f.State())
	assert.Zero(t, f.Len())
	_, ok := f.Latest()
	assert.False(t, ok)

	require.NoError(t, f.AddValue(String("former"), day(2), ""))
	assert.Equal(t, StatePopulated, f.State())
	assert.Equal(t, 1, f.Len())

	f.MarkMissing()
	assert.Equal(t, StateMissing, f.State())
	assert.Zero(t, f.Len())
}

func TestField_History(t *testing.T) {
	f := NewField("hba1c", TypeNumber)
	for d := 1; d <= 5; d++ {
		require.NoError(t, f.AddValue(Number(5.0+float64(d)/10), day(d), "%"))
	}

	start, end := day(2), day(4)
	tests := []struct {
		name       string
		start, end *time.Time
		want       int
	}{
		{"unbounded", nil, nil, 5},
		{"inclusive both", &start, &end, 3},
		{"from only", &start, nil, 4},
		{"until only", nil, &end, 4},
		{"single instant", &start, &start, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.History(tt.start, tt.end)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			for _, p := range got {
				if tt.start != nil {
					assert.False(t, p.Timestamp().Before(*tt.start))
				}
				if tt.end != nil {
					assert.False(t, p.Timestamp().After(*tt.end))
				}
			}
		})
	}

	t.Run("start after end", func(t *testing.T) {
		_, err := f.History(&end, &start)
		assert.True(t, errors.Is(err, errors.ErrInvalidDateRange))
	})

	t.Run("empty field", func(t *testing.T) {
		got, err := NewField("x", TypeNumber).History(nil, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestField_Recent(t *testing.T) {
	f := NewField("steps", TypeNumber)
	for d := 1; d <= 4; d++ {
		require.NoError(t, f.AddValue(Number(float64(d*1000)), day(d), "steps"))
	}
	recent := f.Recent(2)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Timestamp().Equal(day(3)))
	assert.True(t, recent[1].Timestamp().Equal(day(4)))
	assert.Len(t, f.Recent(10), 4)
	assert.Nil(t, f.Recent(0))
}

func TestDataPoint_Immutable(t *testing.T) {
	meta := map[string]any{"lab": "quest", "flags": []any{"fasting"}}
	p := NewDataPoint(Number(95), day(10).In(time.FixedZone("EST", -5*3600)), "mg/dL", meta)

	meta["lab"] = "changed"
	meta["flags"].([]any)[0] = "changed"
	assert.Equal(t, "quest", p.Metadata()["lab"])
	assert.Equal(t, []any{"fasting"}, p.Metadata()["flags"])

	got := p.Metadata()
	got["lab"] = "mutated"
	assert.Equal(t, "quest", p.Metadata()["lab"])

	assert.Equal(t, time.UTC, p.Timestamp().Location())
	assert.True(t, p.Equal(NewDataPoint(Number(95), day(10), "mg/dL", map[string]any{"lab": "quest", "flags": []any{"fasting"}})))
}
