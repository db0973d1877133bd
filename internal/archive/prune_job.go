package archive

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetention is how long fetch records are kept before pruning.
const DefaultRetention = 90 * 24 * time.Hour

// PruneJob removes fetch records older than the retention window.
// It should be scheduled to run weekly.
type PruneJob struct {
	store  *Store
	maxAge time.Duration
	log    zerolog.Logger
}

// NewPruneJob creates a new archive prune job.
// A maxAge of zero falls back to DefaultRetention.
func NewPruneJob(store *Store, maxAge time.Duration, log zerolog.Logger) *PruneJob {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	return &PruneJob{
		store:  store,
		maxAge: maxAge,
		log:    log.With().Str("job", "archive_prune").Logger(),
	}
}

// Run executes the prune job.
func (j *PruneJob) Run() error {
	deleted, err := j.store.PruneOlderThan(j.maxAge)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to prune fetch archive")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Dur("max_age", j.maxAge).
			Msg("Pruned old fetch records")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PruneJob) Name() string {
	return "archive_prune"
}
