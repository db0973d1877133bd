// Package calendar implements the futures trading calendar: holiday-aware
// trading-day classification and the alignment of continuous-series roll
// histories onto the trading-day index.
package calendar

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/almanac/internal/events"
)

// Source supplies the two vendor data files. Implementations own transport
// concerns (timeouts, caching, retries); the service treats a call as a
// single blocking fetch.
type Source interface {
	// Holidays returns the national holiday list as ISO YYYY-MM-DD strings.
	Holidays(ctx context.Context) ([]string, error)
	// ContinuousTable returns the roll table keyed by bare series identifier
	// (without the continuous-contract prefix).
	ContinuousTable(ctx context.Context) (map[string][]RawRoll, error)
}

// Service owns the lazily loaded holiday set and continuous-series catalog
// and builds calendar views from them. Each cache populates at most once per
// service lifetime: concurrent first callers block on a single fetch, and
// after a failed attempt the next caller retries. Reads after population are
// lock-free; the data is immutable.
type Service struct {
	source Source
	loc    *time.Location
	bus    *events.Bus
	log    zerolog.Logger

	holidayMu sync.Mutex
	holidays  atomic.Pointer[HolidaySet]

	catalogMu sync.Mutex
	catalog   atomic.Pointer[seriesCatalog]
}

// ServiceStats describes the service's loaded state without triggering a
// fetch.
type ServiceStats struct {
	MarketTimezone string    `json:"market_timezone"`
	HolidaysLoaded bool      `json:"holidays_loaded"`
	HolidayCount   int       `json:"holiday_count"`
	RangeStart     time.Time `json:"range_start,omitempty"`
	RangeEnd       time.Time `json:"range_end,omitempty"`
	CatalogLoaded  bool      `json:"catalog_loaded"`
	SeriesCount    int       `json:"series_count"`
}

// NewService creates a calendar service. loc is the market timezone all date
// normalization happens in. bus may be nil when no event fan-out is wanted.
func NewService(source Source, loc *time.Location, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		source: source,
		loc:    loc,
		bus:    bus,
		log:    log.With().Str("component", "calendar").Logger(),
	}
}

// Location returns the market timezone the service normalizes dates into.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Preload warms both caches. Useful at startup so the first query does not
// pay the fetch latency; queries work without it.
func (s *Service) Preload(ctx context.Context) error {
	if _, err := s.ensureHolidays(ctx); err != nil {
		return err
	}
	if _, err := s.ensureCatalog(ctx); err != nil {
		return err
	}
	return nil
}

// ensureHolidays returns the holiday set, fetching and parsing it on first
// use. The mutex covers the whole fetch-and-populate sequence so concurrent
// first calls wait for one fetch instead of issuing their own.
func (s *Service) ensureHolidays(ctx context.Context) (*HolidaySet, error) {
	if set := s.holidays.Load(); set != nil {
		return set, nil
	}

	s.holidayMu.Lock()
	defer s.holidayMu.Unlock()
	if set := s.holidays.Load(); set != nil {
		return set, nil
	}

	raw, err := s.source.Holidays(ctx)
	if err != nil {
		return nil, err
	}
	set, err := newHolidaySet(raw, s.loc)
	if err != nil {
		return nil, err
	}

	s.holidays.Store(set)
	first, last := set.ValidRange()
	s.log.Info().
		Int("holidays", set.Len()).
		Str("range_start", first.Format(dateLayout)).
		Str("range_end", last.Format(dateLayout)).
		Msg("Holiday set loaded")
	s.publish(&events.HolidaysLoadedData{
		Count:      set.Len(),
		RangeStart: first.Format(dateLayout),
		RangeEnd:   last.Format(dateLayout),
	})
	return set, nil
}

// ensureCatalog returns the continuous-series catalog, fetching and parsing
// it on first use. Same population contract as ensureHolidays.
func (s *Service) ensureCatalog(ctx context.Context) (*seriesCatalog, error) {
	if catalog := s.catalog.Load(); catalog != nil {
		return catalog, nil
	}

	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	if catalog := s.catalog.Load(); catalog != nil {
		return catalog, nil
	}

	raw, err := s.source.ContinuousTable(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := newCatalog(raw, s.loc)
	if err != nil {
		return nil, err
	}

	s.catalog.Store(catalog)
	rolls := 0
	for _, history := range catalog.byKey {
		rolls += len(history)
	}
	s.log.Info().
		Int("series", len(catalog.keys)).
		Int("rolls", rolls).
		Msg("Continuous-series catalog loaded")
	s.publish(&events.ContinuousTableLoadedData{Series: len(catalog.keys), Rolls: rolls})
	return catalog, nil
}

// ValidRange returns the window the fetched holiday list covers.
func (s *Service) ValidRange(ctx context.Context) (time.Time, time.Time, error) {
	set, err := s.ensureHolidays(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	first, last := set.ValidRange()
	return first, last, nil
}

// Days classifies every calendar day of the inclusive range [from, to].
func (s *Service) Days(ctx context.Context, from, to time.Time) ([]DayFlag, error) {
	if err := s.checkRange(from, to); err != nil {
		return nil, err
	}
	set, err := s.ensureHolidays(ctx)
	if err != nil {
		return nil, err
	}
	return classifyDays(from, to, s.loc, set), nil
}

// TradingDays returns the trading dates of the inclusive range [from, to].
func (s *Service) TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	if err := s.checkRange(from, to); err != nil {
		return nil, err
	}
	set, err := s.ensureHolidays(ctx)
	if err != nil {
		return nil, err
	}
	return tradingDays(from, to, s.loc, set), nil
}

// IsTradingDay classifies the market-local date of a single instant.
func (s *Service) IsTradingDay(ctx context.Context, at time.Time) (bool, error) {
	set, err := s.ensureHolidays(ctx)
	if err != nil {
		return false, err
	}
	date := marketDate(at, s.loc)
	weekday := date.Weekday()
	return weekday != time.Saturday && weekday != time.Sunday && !set.Contains(date), nil
}

// SeriesKeys returns every known continuous-series key, sorted.
func (s *Service) SeriesKeys(ctx context.Context) ([]string, error) {
	catalog, err := s.ensureCatalog(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(catalog.keys))
	copy(keys, catalog.keys)
	return keys, nil
}

// RollHistory returns the sorted roll history of one series.
func (s *Service) RollHistory(ctx context.Context, key string) ([]RollEntry, error) {
	catalog, err := s.ensureCatalog(ctx)
	if err != nil {
		return nil, err
	}
	history, ok := catalog.lookup(key)
	if !ok {
		return nil, &UnknownSeriesError{Keys: []string{key}}
	}
	out := make([]RollEntry, len(history))
	copy(out, history)
	return out, nil
}

// BuildView builds the aligned calendar table for [from, to]. An empty
// seriesKeys slice selects every series in the catalog. All requested keys
// are validated before any alignment work happens.
func (s *Service) BuildView(ctx context.Context, from, to time.Time, seriesKeys []string) (*View, error) {
	if err := s.checkRange(from, to); err != nil {
		return nil, err
	}
	set, err := s.ensureHolidays(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := s.ensureCatalog(ctx)
	if err != nil {
		return nil, err
	}

	if len(seriesKeys) == 0 {
		seriesKeys = catalog.keys
	}

	days := tradingDays(from, to, s.loc, set)
	view, err := newView(days, seriesKeys, catalog, s.loc)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("from", marketDate(from, s.loc).Format(dateLayout)).
		Str("to", marketDate(to, s.loc).Format(dateLayout)).
		Int("series", len(view.series)).
		Int("trading_days", view.Len()).
		Msg("Calendar view built")
	s.publish(&events.ViewBuiltData{
		From:        marketDate(from, s.loc).Format(dateLayout),
		To:          marketDate(to, s.loc).Format(dateLayout),
		Series:      len(view.series),
		TradingDays: view.Len(),
	})
	return view, nil
}

// Stats reports the loaded state without fetching anything.
func (s *Service) Stats() ServiceStats {
	stats := ServiceStats{MarketTimezone: s.loc.String()}
	if set := s.holidays.Load(); set != nil {
		stats.HolidaysLoaded = true
		stats.HolidayCount = set.Len()
		stats.RangeStart, stats.RangeEnd = set.ValidRange()
	}
	if catalog := s.catalog.Load(); catalog != nil {
		stats.CatalogLoaded = true
		stats.SeriesCount = len(catalog.keys)
	}
	return stats
}

func (s *Service) checkRange(from, to time.Time) error {
	first := marketDate(from, s.loc)
	last := marketDate(to, s.loc)
	if first.After(last) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidRange, first.Format(dateLayout), last.Format(dateLayout))
	}
	return nil
}

func (s *Service) publish(data events.EventData) {
	if s.bus != nil {
		s.bus.Publish("calendar", data)
	}
}
