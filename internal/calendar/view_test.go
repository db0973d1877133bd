package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decemberView builds the reference table used across the view tests:
// trading days {12-06, 12-09, 12-10, 12-11, 12-12} (Thu 12-05 is a holiday,
// 07/08 a weekend) with series KQ.m@A rolling X2001 -> X2005 on 12-10.
func decemberView(t *testing.T, loc *time.Location) *View {
	t.Helper()

	set, err := newHolidaySet([]string{"2019-12-05"}, loc)
	require.NoError(t, err)
	catalog, err := newCatalog(map[string][]RawRoll{
		"A": {
			{Date: 20191206, Underlying: "X2001"},
			{Date: 20191210, Underlying: "X2005"},
		},
	}, loc)
	require.NoError(t, err)

	days := tradingDays(
		time.Date(2019, 12, 5, 0, 0, 0, 0, loc),
		time.Date(2019, 12, 12, 0, 0, 0, 0, loc),
		loc, set,
	)
	view, err := newView(days, catalog.keys, catalog, loc)
	require.NoError(t, err)
	return view
}

func TestViewColumnAlignment(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	require.Equal(t, 5, view.Len())
	column, ok := view.Column("KQ.m@A")
	require.True(t, ok)
	assert.Equal(t, []string{"X2001", "X2001", "X2005", "X2005", "X2005"}, column)
}

// TestViewResolveSkipsNonTradingDay resolves an instant on a Saturday and
// expects the following Monday's row.
func TestViewResolveSkipsNonTradingDay(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	row, ok := view.Resolve(time.Date(2019, 12, 7, 0, 0, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 9, 0, 0, 0, 0, loc), row.Date)
	assert.Equal(t, "X2001", row.Underlyings["KQ.m@A"])
}

func TestViewResolveExactTradingDay(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	row, ok := view.Resolve(time.Date(2019, 12, 10, 0, 0, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 10, 0, 0, 0, 0, loc), row.Date)
	assert.Equal(t, "X2005", row.Underlyings["KQ.m@A"])
}

// TestViewResolveIntraday checks that an instant during a trading day
// resolves to that same day, not the next one.
func TestViewResolveIntraday(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	row, ok := view.Resolve(time.Date(2019, 12, 10, 21, 5, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 10, 0, 0, 0, 0, loc), row.Date)
}

func TestViewResolveBeforeStart(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	row, ok := view.Resolve(time.Date(2019, 12, 1, 0, 0, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 6, 0, 0, 0, 0, loc), row.Date)
}

func TestViewResolvePastEnd(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	_, ok := view.Resolve(time.Date(2019, 12, 13, 0, 0, 0, 0, loc))
	assert.False(t, ok)

	// End of the last trading day still resolves to it.
	row, ok := view.Resolve(time.Date(2019, 12, 12, 23, 59, 59, 0, loc))
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 12, 0, 0, 0, 0, loc), row.Date)
}

// TestViewResolveForeignZoneInstant feeds UTC instants and checks they are
// interpreted on the market-local calendar.
func TestViewResolveForeignZoneInstant(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	// 17:00 UTC on Fri 12-06 is already Sat 12-07 in Shanghai, so the next
	// trading day is Monday.
	row, ok := view.Resolve(time.Date(2019, 12, 6, 17, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 9, 0, 0, 0, 0, loc), row.Date)

	// 15:59 UTC is still Friday evening in Shanghai.
	row, ok = view.Resolve(time.Date(2019, 12, 6, 15, 59, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 6, 0, 0, 0, 0, loc), row.Date)
}

func TestViewUnknownSeriesListsAllKeys(t *testing.T) {
	loc := testLocation(t)
	catalog, err := newCatalog(map[string][]RawRoll{
		"A": {{Date: 20191206, Underlying: "X2001"}},
	}, loc)
	require.NoError(t, err)

	days := dates(loc, 6, 9)
	_, err = newView(days, []string{"KQ.m@A", "KQ.m@ZZ.two", "KQ.m@ZZ.one"}, catalog, loc)
	require.Error(t, err)

	var unknown *UnknownSeriesError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"KQ.m@ZZ.one", "KQ.m@ZZ.two"}, unknown.Keys)
}

func TestViewUnderlyingOn(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	underlying, ok, err := view.UnderlyingOn("KQ.m@A", time.Date(2019, 12, 11, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "X2005", underlying)

	_, ok, err = view.UnderlyingOn("KQ.m@A", time.Date(2020, 1, 1, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = view.UnderlyingOn("KQ.m@missing", time.Date(2019, 12, 11, 0, 0, 0, 0, loc))
	var unknown *UnknownSeriesError
	require.ErrorAs(t, err, &unknown)
}

// TestViewEmptyRange covers a range with no trading days at all.
func TestViewEmptyRange(t *testing.T) {
	loc := testLocation(t)
	catalog, err := newCatalog(map[string][]RawRoll{
		"A": {{Date: 20191206, Underlying: "X2001"}},
	}, loc)
	require.NoError(t, err)

	view, err := newView(nil, catalog.keys, catalog, loc)
	require.NoError(t, err)

	assert.Equal(t, 0, view.Len())
	_, ok := view.Start()
	assert.False(t, ok)
	_, ok = view.End()
	assert.False(t, ok)
	_, ok = view.Resolve(time.Date(2019, 12, 6, 0, 0, 0, 0, loc))
	assert.False(t, ok)
}

func TestViewAccessors(t *testing.T) {
	loc := testLocation(t)
	view := decemberView(t, loc)

	start, ok := view.Start()
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 6, 0, 0, 0, 0, loc), start)

	end, ok := view.End()
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 12, 0, 0, 0, 0, loc), end)

	assert.Equal(t, []string{"KQ.m@A"}, view.SeriesKeys())
	assert.False(t, view.BuiltAt().IsZero())

	// Returned slices are copies; mutating them must not change the view.
	days := view.TradingDays()
	days[0] = time.Date(1999, 1, 1, 0, 0, 0, 0, loc)
	fresh := view.TradingDays()
	assert.Equal(t, time.Date(2019, 12, 6, 0, 0, 0, 0, loc), fresh[0])

	column, ok := view.Column("KQ.m@A")
	require.True(t, ok)
	column[0] = "tampered"
	refetched, ok := view.Column("KQ.m@A")
	require.True(t, ok)
	assert.Equal(t, "X2001", refetched[0])

	_, ok = view.Column("KQ.m@missing")
	assert.False(t, ok)
}
