package calendar

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// HolidaySet holds the fetched national holidays and the date window the
// fetched list is authoritative for.
type HolidaySet struct {
	dates map[string]struct{}
	first time.Time
	last  time.Time
}

// newHolidaySet parses the raw vendor list (ISO YYYY-MM-DD strings) into a
// holiday set. The valid range spans from Jan 1 of the earliest holiday's
// year to Dec 31 of the latest holiday's year.
func newHolidaySet(raw []string, loc *time.Location) (*HolidaySet, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Source: SourceHolidays, Err: errors.New("empty holiday list")}
	}

	dates := make(map[string]struct{}, len(raw))
	minYear, maxYear := 0, 0
	for _, s := range raw {
		d, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return nil, &ParseError{Source: SourceHolidays, Err: fmt.Errorf("bad date %q: %w", s, err)}
		}
		dates[s] = struct{}{}

		year := d.Year()
		if minYear == 0 || year < minYear {
			minYear = year
		}
		if year > maxYear {
			maxYear = year
		}
	}

	return &HolidaySet{
		dates: dates,
		first: time.Date(minYear, time.January, 1, 0, 0, 0, 0, loc),
		last:  time.Date(maxYear, time.December, 31, 0, 0, 0, 0, loc),
	}, nil
}

// Contains reports whether the given market-local date is a listed holiday.
func (h *HolidaySet) Contains(date time.Time) bool {
	_, ok := h.dates[date.Format(dateLayout)]
	return ok
}

// ValidRange returns the window the fetched holiday list covers. Dates
// outside it classify by the weekday rule alone (no holiday information).
func (h *HolidaySet) ValidRange() (time.Time, time.Time) {
	return h.first, h.last
}

// Len returns the number of holidays in the set.
func (h *HolidaySet) Len() int {
	return len(h.dates)
}
