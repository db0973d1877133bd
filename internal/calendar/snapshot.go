package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// TableSnapshot is the wire form of a View: the full aligned table as plain
// slices, exported over the API as JSON or msgpack and importable back into
// a queryable view. Days holds unix seconds of each trading day's midnight
// in the market timezone; every column in Columns is positionally aligned
// with Days.
type TableSnapshot struct {
	BuiltAt  time.Time           `json:"built_at" msgpack:"built_at"`
	Timezone string              `json:"timezone" msgpack:"timezone"`
	Days     []int64             `json:"days" msgpack:"days"`
	Series   []string            `json:"series" msgpack:"series"`
	Columns  map[string][]string `json:"columns" msgpack:"columns"`
}

// Snapshot exports the view as a snapshot.
func (v *View) Snapshot() *TableSnapshot {
	days := make([]int64, len(v.days))
	for i, d := range v.days {
		days[i] = d.Unix()
	}
	columns := make(map[string][]string, len(v.columns))
	for key, column := range v.columns {
		out := make([]string, len(column))
		copy(out, column)
		columns[key] = out
	}
	return &TableSnapshot{
		BuiltAt:  v.builtAt,
		Timezone: v.loc.String(),
		Days:     days,
		Series:   v.SeriesKeys(),
		Columns:  columns,
	}
}

// Encode marshals the snapshot to msgpack.
func (s *TableSnapshot) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, &ParseError{Source: SourceSnapshot, Err: err}
	}
	return data, nil
}

// DecodeSnapshot unmarshals a msgpack snapshot and checks its shape.
func DecodeSnapshot(data []byte) (*TableSnapshot, error) {
	var s TableSnapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, &ParseError{Source: SourceSnapshot, Err: err}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// View rebuilds a queryable view from the snapshot.
func (s *TableSnapshot) View() (*View, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, &ParseError{Source: SourceSnapshot, Err: fmt.Errorf("timezone %q: %w", s.Timezone, err)}
	}

	days := make([]time.Time, len(s.Days))
	for i, sec := range s.Days {
		days[i] = time.Unix(sec, 0).In(loc)
	}
	series := make([]string, len(s.Series))
	copy(series, s.Series)
	sort.Strings(series)
	columns := make(map[string][]string, len(s.Columns))
	for key, column := range s.Columns {
		out := make([]string, len(column))
		copy(out, column)
		columns[key] = out
	}

	return &View{
		loc:     loc,
		days:    days,
		series:  series,
		columns: columns,
		builtAt: s.BuiltAt,
	}, nil
}

func (s *TableSnapshot) validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return &ParseError{Source: SourceSnapshot, Err: fmt.Errorf("timezone %q: %w", s.Timezone, err)}
	}
	for i := 1; i < len(s.Days); i++ {
		if s.Days[i] <= s.Days[i-1] {
			return &ParseError{Source: SourceSnapshot, Err: fmt.Errorf("days not strictly ascending at index %d", i)}
		}
	}
	if len(s.Columns) != len(s.Series) {
		return &ParseError{Source: SourceSnapshot, Err: fmt.Errorf("%d columns for %d series", len(s.Columns), len(s.Series))}
	}
	for _, key := range s.Series {
		column, ok := s.Columns[key]
		if !ok {
			return &ParseError{Source: SourceSnapshot, Err: fmt.Errorf("missing column for series %s", key)}
		}
		if len(column) != len(s.Days) {
			return &ParseError{Source: SourceSnapshot, Err: fmt.Errorf("series %s has %d values for %d days", key, len(column), len(s.Days))}
		}
	}
	return nil
}
