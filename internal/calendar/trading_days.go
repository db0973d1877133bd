package calendar

import "time"

// DayFlag is one row of a day-by-day classification: a calendar date at
// market-local midnight and whether the market trades on it.
type DayFlag struct {
	Date    time.Time
	Trading bool
}

// marketDate returns the calendar date of t in the market timezone, at
// midnight. All date comparisons in this package happen on these normalized
// values so the caller's instant representation does not matter.
func marketDate(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// classifyDays produces one DayFlag per calendar day of the inclusive range
// [start, end], ascending, with no gaps. A day trades when it is neither a
// weekend day nor a listed holiday. Days outside the holiday set's valid
// range carry no holiday information and classify by the weekday rule alone.
func classifyDays(start, end time.Time, loc *time.Location, holidays *HolidaySet) []DayFlag {
	first := marketDate(start, loc)
	last := marketDate(end, loc)

	var days []DayFlag
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		weekday := d.Weekday()
		trading := weekday != time.Saturday && weekday != time.Sunday && !holidays.Contains(d)
		days = append(days, DayFlag{Date: d, Trading: trading})
	}
	return days
}

// tradingDays filters classifyDays down to the trading dates only.
func tradingDays(start, end time.Time, loc *time.Location, holidays *HolidaySet) []time.Time {
	flags := classifyDays(start, end, loc, holidays)
	days := make([]time.Time, 0, len(flags))
	for _, f := range flags {
		if f.Trading {
			days = append(days, f.Date)
		}
	}
	return days
}
