package shinny

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/almanac/internal/archive"
	"github.com/aristath/almanac/internal/calendar"
	"github.com/aristath/almanac/internal/clientdata"
	"github.com/aristath/almanac/internal/events"
)

var _ calendar.Source = (*Client)(nil)

const cacheSchema = `
CREATE TABLE shinny_holidays (source TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE shinny_continuous (source TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
`

const (
	holidayPayload    = `["2019-05-01","2019-10-01","2019-12-05"]`
	continuousPayload = `{"SHFE.cu":[[20191206,"SHFE.cu2001"],[20191210,"SHFE.cu2005"]],"DCE.m":[[20191209,"DCE.m2005"]]}`
)

func setupCacheRepo(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(cacheSchema)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

// vendorServer serves the two data files and counts requests per path.
func vendorServer(t *testing.T, hits map[string]*int) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		if n, ok := hits[r.URL.Path]; ok {
			*n++
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/holidays.json":
			w.Write([]byte(holidayPayload))
		case "/continuous.json":
			w.Write([]byte(continuousPayload))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Options{}, zerolog.Nop())

	assert.Equal(t, DefaultHolidayURL, client.holidayURL)
	assert.Equal(t, DefaultContinuousTableURL, client.continuousURL)
	assert.Equal(t, defaultTimeout, client.client.Timeout)
}

func TestHolidays_Success(t *testing.T) {
	server := vendorServer(t, nil)

	client := NewClient(Options{
		HolidayURL: server.URL + "/holidays.json",
	}, zerolog.Nop())

	days, err := client.Holidays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2019-05-01", "2019-10-01", "2019-12-05"}, days)
}

func TestHolidays_CacheHit(t *testing.T) {
	holidayHits := 0
	server := vendorServer(t, map[string]*int{"/holidays.json": &holidayHits})

	client := NewClient(Options{
		HolidayURL: server.URL + "/holidays.json",
		CacheRepo:  setupCacheRepo(t),
	}, zerolog.Nop())

	// First call goes to the network and populates the cache
	days, err := client.Holidays(context.Background())
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, 1, holidayHits)

	// Second call is served from the cache
	days, err = client.Holidays(context.Background())
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, 1, holidayHits)
}

func TestHolidays_StaleFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := setupCacheRepo(t)
	url := server.URL + "/holidays.json"

	// Seed an already-expired cache entry
	err := repo.StoreRaw(clientdata.TableHolidays, url, []byte(`["2019-05-01"]`), -time.Hour)
	require.NoError(t, err)

	client := NewClient(Options{
		HolidayURL: url,
		CacheRepo:  repo,
	}, zerolog.Nop())

	days, err := client.Holidays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2019-05-01"}, days)
}

func TestHolidays_FetchErrorNoCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Options{
		HolidayURL: server.URL + "/holidays.json",
	}, zerolog.Nop())

	_, err := client.Holidays(context.Background())
	require.Error(t, err)

	var fetchErr *calendar.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, calendar.SourceHolidays, fetchErr.Source)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.Status)
}

func TestHolidays_Unreachable(t *testing.T) {
	// Point at a closed server so the request itself fails
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL + "/holidays.json"
	server.Close()

	client := NewClient(Options{HolidayURL: url}, zerolog.Nop())

	_, err := client.Holidays(context.Background())
	require.Error(t, err)

	var fetchErr *calendar.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.Status)
	assert.Error(t, fetchErr.Err)
}

func TestHolidays_ParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	}))
	defer server.Close()

	client := NewClient(Options{
		HolidayURL: server.URL + "/holidays.json",
	}, zerolog.Nop())

	_, err := client.Holidays(context.Background())
	require.Error(t, err)

	var parseErr *calendar.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, calendar.SourceHolidays, parseErr.Source)
}

func TestContinuousTable_Success(t *testing.T) {
	server := vendorServer(t, nil)

	client := NewClient(Options{
		ContinuousTableURL: server.URL + "/continuous.json",
	}, zerolog.Nop())

	table, err := client.ContinuousTable(context.Background())
	require.NoError(t, err)
	require.Len(t, table, 2)

	// Keys come back bare, without the continuous-contract prefix
	require.Contains(t, table, "SHFE.cu")
	require.Contains(t, table, "DCE.m")

	cu := table["SHFE.cu"]
	require.Len(t, cu, 2)
	assert.Equal(t, calendar.RawRoll{Date: 20191206, Underlying: "SHFE.cu2001"}, cu[0])
	assert.Equal(t, calendar.RawRoll{Date: 20191210, Underlying: "SHFE.cu2005"}, cu[1])
}

func TestContinuousTable_BadTuple(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"SHFE.cu":[[20191206]]}`))
	}))
	defer server.Close()

	client := NewClient(Options{
		ContinuousTableURL: server.URL + "/continuous.json",
	}, zerolog.Nop())

	_, err := client.ContinuousTable(context.Background())
	require.Error(t, err)

	var parseErr *calendar.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, calendar.SourceContinuous, parseErr.Source)
}

func TestContinuousTable_StaleFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	repo := setupCacheRepo(t)
	url := server.URL + "/continuous.json"

	err := repo.StoreRaw(clientdata.TableContinuous, url, []byte(continuousPayload), -time.Hour)
	require.NoError(t, err)

	client := NewClient(Options{
		ContinuousTableURL: url,
		CacheRepo:          repo,
	}, zerolog.Nop())

	table, err := client.ContinuousTable(context.Background())
	require.NoError(t, err)
	assert.Len(t, table, 2)
}

func TestClientRecordsFetches(t *testing.T) {
	server := vendorServer(t, nil)

	store, err := archive.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	client := NewClient(Options{
		HolidayURL: server.URL + "/holidays.json",
		Archive:    store,
	}, zerolog.Nop())

	_, err = client.Holidays(context.Background())
	require.NoError(t, err)

	records, err := store.RecentFetches(10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, calendar.SourceHolidays, rec.Source)
	assert.Equal(t, http.StatusOK, rec.Status)
	assert.Equal(t, int64(len(holidayPayload)), rec.SizeBytes)
	assert.Equal(t, archive.Checksum([]byte(holidayPayload)), rec.SHA256)
}

func TestClientPublishesEvents(t *testing.T) {
	server := vendorServer(t, nil)

	bus := events.NewBus(zerolog.Nop())
	var published []*events.SourceFetchedData
	bus.Subscribe(events.SourceFetched, func(e *events.Event) {
		if data, ok := e.Data.(*events.SourceFetchedData); ok {
			published = append(published, data)
		}
	})

	client := NewClient(Options{
		HolidayURL: server.URL + "/holidays.json",
		CacheRepo:  setupCacheRepo(t),
		Bus:        bus,
	}, zerolog.Nop())

	_, err := client.Holidays(context.Background())
	require.NoError(t, err)
	_, err = client.Holidays(context.Background())
	require.NoError(t, err)

	require.Len(t, published, 2)
	assert.False(t, published[0].Cached, "first call is a real fetch")
	assert.Equal(t, http.StatusOK, published[0].Status)
	assert.True(t, published[1].Cached, "second call is served from cache")
	assert.False(t, published[1].Stale)
}
