package clientdata

import (
	"github.com/aristath/almanac/internal/events"
	"github.com/rs/zerolog"
)

// CleanupJob removes expired entries from all cache tables.
// It should be scheduled to run hourly.
type CleanupJob struct {
	repo *Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewCleanupJob creates a new cache cleanup job. The bus may be nil.
func NewCleanupJob(repo *Repository, bus *events.Bus, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run executes the cleanup job, removing all expired entries from all tables.
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired cache entries")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			j.log.Info().
				Str("table", table).
				Int64("deleted", count).
				Msg("Cleaned up expired cache entries")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Cache cleanup completed")
	}

	if j.bus != nil {
		j.bus.Publish("clientdata", &events.CacheCleanupCompletedData{Deleted: totalDeleted})
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
