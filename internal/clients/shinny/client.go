// Package shinny fetches the vendor calendar files: the national holiday
// list and the continuous-contract roll table. Fetches are cache-first with
// a stale fallback, so a source outage does not take the calendar down as
// long as an older copy exists.
package shinny

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/almanac/internal/archive"
	"github.com/aristath/almanac/internal/calendar"
	"github.com/aristath/almanac/internal/clientdata"
	"github.com/aristath/almanac/internal/events"
)

// Default locations of the vendor data files.
const (
	DefaultHolidayURL         = "https://files.shinnytech.com/shinny_chinese_holiday.json"
	DefaultContinuousTableURL = "https://files.shinnytech.com/continuous_table.json"
)

const defaultTimeout = 30 * time.Second

// Options configures a Client. Empty URL and zero timeout fields fall back
// to the vendor defaults. CacheRepo, Archive, and Bus are each optional -
// nil disables that integration.
type Options struct {
	HolidayURL         string
	ContinuousTableURL string
	Timeout            time.Duration
	CacheRepo          *clientdata.Repository
	Archive            *archive.Store
	Bus                *events.Bus
}

// Client fetches the Shinny data files. It implements calendar.Source.
type Client struct {
	holidayURL    string
	continuousURL string
	client        *http.Client
	log           zerolog.Logger
	cacheRepo     *clientdata.Repository
	archive       *archive.Store
	bus           *events.Bus
}

// NewClient creates a new Shinny data client.
func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.HolidayURL == "" {
		opts.HolidayURL = DefaultHolidayURL
	}
	if opts.ContinuousTableURL == "" {
		opts.ContinuousTableURL = DefaultContinuousTableURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &Client{
		holidayURL:    opts.HolidayURL,
		continuousURL: opts.ContinuousTableURL,
		client:        &http.Client{Timeout: opts.Timeout},
		log:           log.With().Str("client", "shinny").Logger(),
		cacheRepo:     opts.CacheRepo,
		archive:       opts.Archive,
		bus:           opts.Bus,
	}
}

// rollPair is one [date, underlying] tuple from the vendor roll table.
type rollPair struct {
	Date       int64
	Underlying string
}

// UnmarshalJSON decodes the vendor's two-element array form.
func (p *rollPair) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("roll entry has %d elements, want 2", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &p.Date); err != nil {
		return fmt.Errorf("roll date: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &p.Underlying); err != nil {
		return fmt.Errorf("roll underlying: %w", err)
	}
	return nil
}

func decodeHolidays(data []byte) ([]string, error) {
	var days []string
	if err := json.Unmarshal(data, &days); err != nil {
		return nil, err
	}
	return days, nil
}

func decodeContinuousTable(data []byte) (map[string][]calendar.RawRoll, error) {
	var raw map[string][]rollPair
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	table := make(map[string][]calendar.RawRoll, len(raw))
	for key, pairs := range raw {
		rolls := make([]calendar.RawRoll, 0, len(pairs))
		for _, p := range pairs {
			rolls = append(rolls, calendar.RawRoll{Date: p.Date, Underlying: p.Underlying})
		}
		table[key] = rolls
	}
	return table, nil
}

// Holidays fetches the national holiday list.
// If the fetch fails, returns stale cached data if available.
func (c *Client) Holidays(ctx context.Context) ([]string, error) {
	// Check persistent cache for fresh data
	if data := c.freshFromCache(clientdata.TableHolidays, c.holidayURL); data != nil {
		if days, err := decodeHolidays(data); err == nil {
			c.log.Debug().Int("count", len(days)).Msg("Holiday cache hit")
			c.publish(&events.SourceFetchedData{
				Source: calendar.SourceHolidays,
				URL:    c.holidayURL,
				Bytes:  len(data),
				Cached: true,
			})
			return days, nil
		}
	}

	payload, status, err := c.download(ctx, calendar.SourceHolidays, c.holidayURL)
	if err != nil {
		if days, n, ok := c.staleHolidays(); ok {
			c.log.Warn().Err(err).Msg("Holiday fetch failed, using stale cached copy")
			c.publish(&events.SourceFetchedData{
				Source: calendar.SourceHolidays,
				URL:    c.holidayURL,
				Bytes:  n,
				Cached: true,
				Stale:  true,
			})
			return days, nil
		}
		return nil, err
	}

	days, derr := decodeHolidays(payload)
	if derr != nil {
		if days, n, ok := c.staleHolidays(); ok {
			c.log.Warn().Err(derr).Msg("Holiday payload unreadable, using stale cached copy")
			c.publish(&events.SourceFetchedData{
				Source: calendar.SourceHolidays,
				URL:    c.holidayURL,
				Bytes:  n,
				Cached: true,
				Stale:  true,
			})
			return days, nil
		}
		return nil, &calendar.ParseError{Source: calendar.SourceHolidays, Err: derr}
	}

	c.storeInCache(clientdata.TableHolidays, c.holidayURL, payload, clientdata.TTLHolidays)
	c.publish(&events.SourceFetchedData{
		Source: calendar.SourceHolidays,
		URL:    c.holidayURL,
		Status: status,
		Bytes:  len(payload),
	})
	c.log.Info().Int("count", len(days)).Msg("Fetched holiday list")

	return days, nil
}

// ContinuousTable fetches the roll table, keyed by bare series identifier.
// If the fetch fails, returns stale cached data if available.
func (c *Client) ContinuousTable(ctx context.Context) (map[string][]calendar.RawRoll, error) {
	if data := c.freshFromCache(clientdata.TableContinuous, c.continuousURL); data != nil {
		if table, err := decodeContinuousTable(data); err == nil {
			c.log.Debug().Int("series", len(table)).Msg("Continuous table cache hit")
			c.publish(&events.SourceFetchedData{
				Source: calendar.SourceContinuous,
				URL:    c.continuousURL,
				Bytes:  len(data),
				Cached: true,
			})
			return table, nil
		}
	}

	payload, status, err := c.download(ctx, calendar.SourceContinuous, c.continuousURL)
	if err != nil {
		if table, n, ok := c.staleContinuousTable(); ok {
			c.log.Warn().Err(err).Msg("Continuous table fetch failed, using stale cached copy")
			c.publish(&events.SourceFetchedData{
				Source: calendar.SourceContinuous,
				URL:    c.continuousURL,
				Bytes:  n,
				Cached: true,
				Stale:  true,
			})
			return table, nil
		}
		return nil, err
	}

	table, derr := decodeContinuousTable(payload)
	if derr != nil {
		if table, n, ok := c.staleContinuousTable(); ok {
			c.log.Warn().Err(derr).Msg("Continuous table payload unreadable, using stale cached copy")
			c.publish(&events.SourceFetchedData{
				Source: calendar.SourceContinuous,
				URL:    c.continuousURL,
				Bytes:  n,
				Cached: true,
				Stale:  true,
			})
			return table, nil
		}
		return nil, &calendar.ParseError{Source: calendar.SourceContinuous, Err: derr}
	}

	c.storeInCache(clientdata.TableContinuous, c.continuousURL, payload, clientdata.TTLContinuousTable)
	c.publish(&events.SourceFetchedData{
		Source: calendar.SourceContinuous,
		URL:    c.continuousURL,
		Status: status,
		Bytes:  len(payload),
	})
	c.log.Info().Int("series", len(table)).Msg("Fetched continuous table")

	return table, nil
}

// download performs the actual HTTP fetch and records it in the archive.
func (c *Client) download(ctx context.Context, source, url string) ([]byte, int, error) {
	c.log.Debug().Str("url", url).Msg("Fetching")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &calendar.FetchError{Source: source, URL: url, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, &calendar.FetchError{Source: source, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &calendar.FetchError{Source: source, URL: url, Status: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &calendar.FetchError{Source: source, URL: url, Err: err}
	}

	if c.archive != nil {
		rec := archive.FetchRecord{
			Source:    source,
			URL:       url,
			Status:    resp.StatusCode,
			SizeBytes: int64(len(payload)),
			SHA256:    archive.Checksum(payload),
		}
		if err := c.archive.RecordFetch(rec); err != nil {
			c.log.Warn().Err(err).Str("source", source).Msg("Failed to archive fetch")
		}
	}

	return payload, resp.StatusCode, nil
}

func (c *Client) freshFromCache(table, url string) json.RawMessage {
	if c.cacheRepo == nil {
		return nil
	}

	data, err := c.cacheRepo.GetIfFresh(table, url)
	if err != nil || data == nil {
		return nil
	}
	return data
}

func (c *Client) storeInCache(table, url string, payload []byte, ttl time.Duration) {
	if c.cacheRepo == nil {
		return
	}

	if err := c.cacheRepo.StoreRaw(table, url, payload, ttl); err != nil {
		c.log.Warn().Err(err).Str("table", table).Msg("Failed to cache payload")
	}
}

// staleHolidays retrieves the cached holiday list even if expired.
func (c *Client) staleHolidays() ([]string, int, bool) {
	if c.cacheRepo == nil {
		return nil, 0, false
	}

	data, err := c.cacheRepo.Get(clientdata.TableHolidays, c.holidayURL)
	if err != nil || data == nil {
		return nil, 0, false
	}

	days, err := decodeHolidays(data)
	if err != nil {
		return nil, 0, false
	}
	return days, len(data), true
}

// staleContinuousTable retrieves the cached roll table even if expired.
func (c *Client) staleContinuousTable() (map[string][]calendar.RawRoll, int, bool) {
	if c.cacheRepo == nil {
		return nil, 0, false
	}

	data, err := c.cacheRepo.Get(clientdata.TableContinuous, c.continuousURL)
	if err != nil || data == nil {
		return nil, 0, false
	}

	table, err := decodeContinuousTable(data)
	if err != nil {
		return nil, 0, false
	}
	return table, len(data), true
}

func (c *Client) publish(data events.EventData) {
	if c.bus != nil {
		c.bus.Publish("shinny", data)
	}
}
