package calendar

import (
	"fmt"
	"sort"
	"time"
)

// SeriesPrefix marks continuous-contract series keys. The vendor roll table
// is keyed by bare instrument identifiers; the catalog prefixes them at load
// so keys match the form consumers use everywhere else.
const SeriesPrefix = "KQ.m@"

// RawRoll is one undecoded entry from the vendor roll table: the roll date
// as a YYYYMMDD integer and the underlying contract identifier.
type RawRoll struct {
	Date       int64
	Underlying string
}

// RollEntry records that Underlying became the active contract for its
// continuous series on Date. Roll dates are not guaranteed to be trading
// days.
type RollEntry struct {
	Date       time.Time
	Underlying string
}

// seriesCatalog is the immutable loaded form of the vendor roll table:
// prefixed series key to roll history, sorted ascending by date.
type seriesCatalog struct {
	byKey map[string][]RollEntry
	keys  []string
}

// newCatalog converts the raw vendor table into sorted per-series roll
// histories. Histories are sorted once here, at load time. A duplicate roll
// date within one series would make the alignment ambiguous, so it aborts
// the load.
func newCatalog(raw map[string][]RawRoll, loc *time.Location) (*seriesCatalog, error) {
	byKey := make(map[string][]RollEntry, len(raw))
	keys := make([]string, 0, len(raw))

	for rawKey, rows := range raw {
		key := SeriesPrefix + rawKey
		history := make([]RollEntry, 0, len(rows))
		for _, row := range rows {
			date, err := yyyymmddDate(row.Date, loc)
			if err != nil {
				return nil, &ParseError{Source: SourceContinuous, Err: fmt.Errorf("series %s: %w", key, err)}
			}
			if row.Underlying == "" {
				return nil, &ParseError{Source: SourceContinuous, Err: fmt.Errorf("series %s: empty underlying on %s", key, date.Format(dateLayout))}
			}
			history = append(history, RollEntry{Date: date, Underlying: row.Underlying})
		}

		sort.Slice(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })
		for i := 1; i < len(history); i++ {
			if history[i].Date.Equal(history[i-1].Date) {
				return nil, &InvariantViolation{Reason: fmt.Sprintf("duplicate roll date %s in series %s", history[i].Date.Format(dateLayout), key)}
			}
		}

		byKey[key] = history
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return &seriesCatalog{byKey: byKey, keys: keys}, nil
}

// lookup returns the roll history for one series key.
func (c *seriesCatalog) lookup(key string) ([]RollEntry, bool) {
	history, ok := c.byKey[key]
	return history, ok
}

// yyyymmddDate converts a vendor YYYYMMDD integer into a market-local
// midnight. Values that do not name a real calendar date are rejected.
func yyyymmddDate(n int64, loc *time.Location) (time.Time, error) {
	if n < 10000101 || n > 99991231 {
		return time.Time{}, fmt.Errorf("bad roll date %d", n)
	}
	year, month, day := int(n/10000), int(n/100%100), int(n%100)
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if date.Year() != year || date.Month() != time.Month(month) || date.Day() != day {
		return time.Time{}, fmt.Errorf("bad roll date %d", n)
	}
	return date, nil
}
