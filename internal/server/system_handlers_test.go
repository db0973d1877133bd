package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/almanac/internal/archive"
	"github.com/aristath/almanac/internal/calendar"
)

func newTestSystemHandlers(t *testing.T) (*SystemHandlers, *archive.Store) {
	t.Helper()

	store, err := archive.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	service := calendar.NewService(defaultFakeSource(), loc, nil, zerolog.Nop())

	handlers := &SystemHandlers{
		log:         zerolog.Nop(),
		dataDir:     t.TempDir(),
		startupTime: time.Now(),
		archive:     store,
		calendar:    service,
	}
	return handlers, store
}

func TestHandleSystemStatus(t *testing.T) {
	handlers, _ := newTestSystemHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec := httptest.NewRecorder()

	handlers.HandleSystemStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, "healthy", response.Status)
	assert.NotEmpty(t, response.Version)
	assert.Greater(t, response.Goroutines, 0)
	assert.GreaterOrEqual(t, response.UptimeSeconds, 0.0)
	// Nothing has queried the calendar yet, so nothing is loaded
	assert.False(t, response.Calendar.HolidaysLoaded)
	assert.False(t, response.Calendar.CatalogLoaded)
	assert.Equal(t, "Asia/Shanghai", response.Calendar.MarketTimezone)
}

func TestHandleSystemStatusAfterCalendarLoad(t *testing.T) {
	handlers, _ := newTestSystemHandlers(t)

	require.NoError(t, handlers.calendar.Preload(context.Background()))

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec := httptest.NewRecorder()
	handlers.HandleSystemStatus(rec, req)

	var response SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.True(t, response.Calendar.HolidaysLoaded)
	assert.Equal(t, 3, response.Calendar.HolidayCount)
	assert.True(t, response.Calendar.CatalogLoaded)
	assert.Equal(t, 2, response.Calendar.SeriesCount)
}

func TestHandleBackupsNotConfigured(t *testing.T) {
	handlers, _ := newTestSystemHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/backups", nil)
	rec := httptest.NewRecorder()

	handlers.HandleBackups(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// stubJob counts runs for the manual trigger test.
type stubJob struct {
	mu   sync.Mutex
	runs int
}

func (j *stubJob) Run() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	return nil
}

func (j *stubJob) Name() string { return "stub_backup" }

func (j *stubJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func TestHandleTriggerBackupNotConfigured(t *testing.T) {
	handlers, _ := newTestSystemHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/system/backup", nil)
	rec := httptest.NewRecorder()

	handlers.HandleTriggerBackup(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleTriggerBackup(t *testing.T) {
	handlers, _ := newTestSystemHandlers(t)

	job := &stubJob{}
	handlers.SetBackupJob(job)

	req := httptest.NewRequest(http.MethodPost, "/api/system/backup", nil)
	rec := httptest.NewRecorder()

	handlers.HandleTriggerBackup(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "started", response["status"])
	assert.Equal(t, "stub_backup", response["job"])

	// The job runs in the background
	assert.Eventually(t, func() bool {
		return job.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleArchiveFetches(t *testing.T) {
	handlers, store := newTestSystemHandlers(t)

	for i, source := range []string{"holidays", "continuous_table"} {
		err := store.RecordFetch(archive.FetchRecord{
			Source:    source,
			URL:       "https://files.example.com/" + source,
			Status:    200,
			SizeBytes: int64(100 + i),
			SHA256:    archive.Checksum([]byte(source)),
			FetchedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/archive/fetches", nil)
	rec := httptest.NewRecorder()
	handlers.HandleArchiveFetches(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Count   int                   `json:"count"`
		Fetches []archive.FetchRecord `json:"fetches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
	// Newest first
	assert.Equal(t, "continuous_table", response.Fetches[0].Source)
}

func TestHandleArchiveFetchesLimit(t *testing.T) {
	handlers, store := newTestSystemHandlers(t)

	for i := 0; i < 3; i++ {
		err := store.RecordFetch(archive.FetchRecord{
			Source: "holidays",
			URL:    "https://files.example.com/holidays.json",
			Status: 200,
		})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/archive/fetches?limit=2", nil)
	rec := httptest.NewRecorder()
	handlers.HandleArchiveFetches(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
}

func TestHandleArchiveFetchesBadLimit(t *testing.T) {
	handlers, _ := newTestSystemHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/archive/fetches?limit=zero", nil)
	rec := httptest.NewRecorder()
	handlers.HandleArchiveFetches(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
