package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// R2BackupJob runs the nightly cloud backup and rotation.
type R2BackupJob struct {
	service       *R2BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewR2BackupJob creates a new R2 backup job.
func NewR2BackupJob(service *R2BackupService, retentionDays int, log zerolog.Logger) *R2BackupJob {
	return &R2BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "r2_backup").Logger(),
	}
}

// Run creates and uploads a backup, then rotates old ones.
func (j *R2BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	return j.service.RotateOldBackups(ctx, j.retentionDays)
}

// Name returns the job name for scheduling and logging.
func (j *R2BackupJob) Name() string {
	return "r2_backup"
}
