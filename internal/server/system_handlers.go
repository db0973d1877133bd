// Package server provides the HTTP server and routing for the almanac.
package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/almanac/internal/archive"
	"github.com/aristath/almanac/internal/calendar"
	"github.com/aristath/almanac/internal/database"
	"github.com/aristath/almanac/internal/reliability"
	"github.com/aristath/almanac/internal/scheduler"
	"github.com/aristath/almanac/internal/version"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	cacheDB     *database.DB
	archive     *archive.Store
	calendar    *calendar.Service
	backups     *reliability.R2BackupService // nil when offsite backups are not configured

	// Set after job registration in main.go
	backupJob scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	cacheDB *database.DB,
	archiveStore *archive.Store,
	calendarService *calendar.Service,
	backups *reliability.R2BackupService,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		cacheDB:     cacheDB,
		archive:     archiveStore,
		calendar:    calendarService,
		backups:     backups,
	}
}

// SetBackupJob registers the backup job for manual triggering.
func (h *SystemHandlers) SetBackupJob(job scheduler.Job) {
	h.backupJob = job
}

// DBStatus describes one database file
type DBStatus struct {
	Name      string  `json:"name"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	UptimeSeconds float64               `json:"uptime_seconds"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	Goroutines    int                   `json:"goroutines"`
	Calendar      calendar.ServiceStats `json:"calendar"`
	Databases     []DBStatus            `json:"databases"`
	ArchivedCount int64                 `json:"archived_fetches"`
}

// HandleSystemStatus returns comprehensive system status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		Version:       version.Version,
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Calendar:      h.calendar.Stats(),
		Databases:     []DBStatus{},
	}

	if h.cacheDB != nil {
		if stats, err := h.cacheDB.GetStats(); err == nil {
			response.Databases = append(response.Databases, DBStatus{
				Name:      h.cacheDB.Name(),
				SizeMB:    float64(stats.SizeBytes) / 1024 / 1024,
				WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
				PageCount: stats.PageCount,
			})
		} else {
			h.log.Warn().Err(err).Msg("Failed to get cache database stats")
		}
	}

	if h.archive != nil {
		count, err := h.archive.Count()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count archived fetches")
		}
		response.ArchivedCount = count
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleBackups lists the backups stored in R2
// GET /api/system/backups
func (h *SystemHandlers) HandleBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "offsite backups not configured",
		})
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// HandleTriggerBackup starts a backup run in the background
// POST /api/system/backup
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backupJob == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "backup job not configured",
		})
		return
	}

	h.log.Info().Msg("Manual backup triggered")

	go func() {
		if err := h.backupJob.Run(); err != nil {
			h.log.Error().Err(err).Msg("Manual backup failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"job":    h.backupJob.Name(),
	})
}

// HandleArchiveFetches returns the most recent recorded source downloads
// GET /api/archive/fetches?limit=
func (h *SystemHandlers) HandleArchiveFetches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid limit: " + raw,
			})
			return
		}
		limit = parsed
	}
	if limit > 500 {
		limit = 500
	}

	fetches, err := h.archive.RecentFetches(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read fetch archive")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"fetches": fetches,
		"count":   len(fetches),
	})
}

// getSystemStats calculates CPU and RAM usage percentages. The CPU sample
// uses a 100ms window so the status endpoint stays fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
