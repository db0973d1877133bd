package calendar

import (
	"errors"
	"fmt"
	"strings"
)

// Source identifiers used in errors, logs and the fetch archive.
const (
	SourceHolidays   = "holidays"
	SourceContinuous = "continuous_table"
	SourceSnapshot   = "snapshot"
)

// ErrInvalidRange reports a query whose start date falls after its end date.
var ErrInvalidRange = errors.New("range start is after range end")

// FetchError reports a failed network fetch from one of the data sources.
// Status is the HTTP status code when the server answered with a non-2xx
// response, 0 when the request never completed.
type FetchError struct {
	Source string
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s from %s: status %d", e.Source, e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s from %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a source payload that does not have the expected shape.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s payload: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnknownSeriesError reports continuous-series keys that are absent from the
// loaded catalog. Keys always carries every invalid key from the request so
// callers can fix them all at once.
type UnknownSeriesError struct {
	Keys []string
}

func (e *UnknownSeriesError) Error() string {
	return fmt.Sprintf("unknown continuous series: %s", strings.Join(e.Keys, ", "))
}

// InvariantViolation reports an internal defect detected while loading or
// aligning calendar data. It aborts construction: a wrong table must never
// be handed to callers.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "calendar invariant violated: " + e.Reason
}
