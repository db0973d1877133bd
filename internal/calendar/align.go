package calendar

import (
	"fmt"
	"time"
)

// alignSeries merges one series' roll history onto the trading-day index and
// returns the per-day underlying column, aligned by position.
//
// Both inputs are sorted ascending, so the full outer join plus forward-fill
// reduces to a two-pointer merge: walk the trading days and carry the
// underlying of the last roll entry dated on or before each day. A roll entry
// dated on a non-trading day (legacy data records some rolls on weekends) or
// before the requested range still advances the carried value but never
// produces a row of its own. Days before the first roll entry stay empty.
func alignSeries(days []time.Time, history []RollEntry) ([]string, error) {
	column := make([]string, 0, len(days))
	underlying := ""
	next := 0
	for _, day := range days {
		for next < len(history) && !history[next].Date.After(day) {
			underlying = history[next].Underlying
			next++
		}
		column = append(column, underlying)
	}

	// One value per trading day, or the table is wrong and must not be used.
	if len(column) != len(days) {
		return nil, &InvariantViolation{Reason: fmt.Sprintf("aligned %d values onto %d trading days", len(column), len(days))}
	}
	return column, nil
}
