package calendar

import (
	"sort"
	"time"
)

// View is one immutable aligned calendar table: the trading days of a
// requested range plus, for each requested continuous series, the underlying
// contract active on every one of those days. Views are safe for concurrent
// readers and are rebuilt, never mutated, when the range or series set
// changes.
type View struct {
	loc     *time.Location
	days    []time.Time
	series  []string
	columns map[string][]string
	builtAt time.Time
}

// Row is the resolution result for one instant: the first trading day on or
// after it and the active underlying per series on that day. An underlying
// is empty for days before the series' first recorded roll.
type Row struct {
	Date        time.Time
	Underlyings map[string]string
}

// newView validates the requested series keys against the catalog and aligns
// each one onto the trading-day index. Key validation is eager and reports
// every invalid key in one error rather than failing on the first.
func newView(days []time.Time, seriesKeys []string, catalog *seriesCatalog, loc *time.Location) (*View, error) {
	var unknown []string
	for _, key := range seriesKeys {
		if _, ok := catalog.lookup(key); !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &UnknownSeriesError{Keys: unknown}
	}

	columns := make(map[string][]string, len(seriesKeys))
	for _, key := range seriesKeys {
		history, _ := catalog.lookup(key)
		column, err := alignSeries(days, history)
		if err != nil {
			return nil, err
		}
		columns[key] = column
	}

	series := make([]string, len(seriesKeys))
	copy(series, seriesKeys)
	sort.Strings(series)

	return &View{
		loc:     loc,
		days:    days,
		series:  series,
		columns: columns,
		builtAt: time.Now().UTC(),
	}, nil
}

// Resolve converts at to its market-local calendar date and returns the row
// of the first trading day on or after that date. ok is false when the
// instant falls past the view's last trading day; that is a normal
// out-of-range outcome, not an error.
func (v *View) Resolve(at time.Time) (Row, bool) {
	target := marketDate(at, v.loc)
	i := sort.Search(len(v.days), func(i int) bool { return !v.days[i].Before(target) })
	if i == len(v.days) {
		return Row{}, false
	}

	underlyings := make(map[string]string, len(v.series))
	for _, key := range v.series {
		underlyings[key] = v.columns[key][i]
	}
	return Row{Date: v.days[i], Underlyings: underlyings}, true
}

// UnderlyingOn resolves a single series as of at. The returned value may be
// empty when the resolved day predates the series' first recorded roll; ok
// is false past the end of the view. Asking for a series the view was not
// built with is an UnknownSeriesError.
func (v *View) UnderlyingOn(key string, at time.Time) (string, bool, error) {
	column, ok := v.columns[key]
	if !ok {
		return "", false, &UnknownSeriesError{Keys: []string{key}}
	}

	target := marketDate(at, v.loc)
	i := sort.Search(len(v.days), func(i int) bool { return !v.days[i].Before(target) })
	if i == len(v.days) {
		return "", false, nil
	}
	return column[i], true, nil
}

// Start returns the first trading day in the view. ok is false for a view
// whose range contained no trading days.
func (v *View) Start() (time.Time, bool) {
	if len(v.days) == 0 {
		return time.Time{}, false
	}
	return v.days[0], true
}

// End returns the last trading day in the view.
func (v *View) End() (time.Time, bool) {
	if len(v.days) == 0 {
		return time.Time{}, false
	}
	return v.days[len(v.days)-1], true
}

// Len returns the number of trading days in the view.
func (v *View) Len() int {
	return len(v.days)
}

// BuiltAt returns the UTC instant the view was assembled.
func (v *View) BuiltAt() time.Time {
	return v.builtAt
}

// TradingDays returns a copy of the view's trading-day index.
func (v *View) TradingDays() []time.Time {
	days := make([]time.Time, len(v.days))
	copy(days, v.days)
	return days
}

// SeriesKeys returns the series columns the view was built with, sorted.
func (v *View) SeriesKeys() []string {
	keys := make([]string, len(v.series))
	copy(keys, v.series)
	return keys
}

// Column returns a copy of one series' per-day underlying column, aligned
// with TradingDays by position.
func (v *View) Column(key string) ([]string, bool) {
	column, ok := v.columns[key]
	if !ok {
		return nil, false
	}
	out := make([]string, len(column))
	copy(out, column)
	return out, true
}
