package calendar

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCadence(t *testing.T) {
	source := defaultFakeSource()
	source.table = map[string][]RawRoll{
		// Gaps: Jan 4 -> Feb 1 is 28 days, Feb 1 -> Mar 15 is 42 days.
		"A": {
			{Date: 20190104, Underlying: "A1905"},
			{Date: 20190201, Underlying: "A1909"},
			{Date: 20190315, Underlying: "A2001"},
		},
	}
	service := newTestService(t, source)

	stats, err := service.Cadence(context.Background(), "KQ.m@A")
	require.NoError(t, err)

	assert.Equal(t, "KQ.m@A", stats.Series)
	assert.Equal(t, 3, stats.Rolls)
	assert.Equal(t, "2019-01-04", stats.FirstRoll)
	assert.Equal(t, "2019-03-15", stats.LastRoll)
	assert.InDelta(t, 35.0, stats.MeanGapDays, 1e-9)
	assert.InDelta(t, math.Sqrt(98), stats.StdDevGapDays, 1e-9)
	assert.InDelta(t, 28.0, stats.MedianGapDays, 1e-9)
	assert.InDelta(t, 28.0, stats.MinGapDays, 1e-9)
	assert.InDelta(t, 42.0, stats.MaxGapDays, 1e-9)
}

func TestCadenceSingleRoll(t *testing.T) {
	source := defaultFakeSource()
	source.table = map[string][]RawRoll{
		"B": {{Date: 20190104, Underlying: "B1905"}},
	}
	service := newTestService(t, source)

	stats, err := service.Cadence(context.Background(), "KQ.m@B")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Rolls)
	assert.Equal(t, "2019-01-04", stats.FirstRoll)
	assert.Equal(t, "2019-01-04", stats.LastRoll)
	assert.Zero(t, stats.MeanGapDays)
	assert.Zero(t, stats.StdDevGapDays)
	assert.Zero(t, stats.MinGapDays)
	assert.Zero(t, stats.MaxGapDays)
}

func TestCadenceTwoRolls(t *testing.T) {
	source := defaultFakeSource()
	service := newTestService(t, source)

	// Default fake: A rolls 2019-12-06 then 2019-12-10, a 4 day gap.
	stats, err := service.Cadence(context.Background(), "KQ.m@A")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Rolls)
	assert.InDelta(t, 4.0, stats.MeanGapDays, 1e-9)
	assert.Zero(t, stats.StdDevGapDays)
	assert.InDelta(t, 4.0, stats.MedianGapDays, 1e-9)
}

func TestCadenceUnknownSeries(t *testing.T) {
	service := newTestService(t, defaultFakeSource())

	_, err := service.Cadence(context.Background(), "KQ.m@missing")
	var unknown *UnknownSeriesError
	require.ErrorAs(t, err, &unknown)
}
