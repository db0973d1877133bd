// Package reliability keeps the almanac's databases healthy and backed up:
// scheduled integrity checks, WAL checkpoints, VACUUM runs, and snapshot
// backups shipped to S3-compatible storage.
package reliability

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"database/sql"

	"github.com/rs/zerolog"
)

// BackupService produces consistent snapshot copies of registered databases.
// Snapshots use VACUUM INTO, so they are taken online without blocking
// readers or writers.
type BackupService struct {
	mu        sync.RWMutex
	databases map[string]*sql.DB
	log       zerolog.Logger
}

// NewBackupService creates a new backup service.
func NewBackupService(log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: make(map[string]*sql.DB),
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// Register adds a database under the given name. Registration normally
// happens once at startup.
func (s *BackupService) Register(name string, db *sql.DB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.databases[name] = db
}

// GetDatabaseNames returns the registered database names, sorted.
func (s *BackupService) GetDatabaseNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Databases returns a snapshot of the registered handles, keyed by name.
func (s *BackupService) Databases() map[string]*sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*sql.DB, len(s.databases))
	for name, db := range s.databases {
		out[name] = db
	}
	return out
}

// BackupDatabase writes a snapshot of the named database to destPath.
func (s *BackupService) BackupDatabase(name, destPath string) error {
	s.mu.RLock()
	db, ok := s.databases[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown database: %s", name)
	}

	// VACUUM INTO takes the destination as a SQL string literal
	quoted := strings.ReplaceAll(destPath, "'", "''")
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("failed to snapshot %s: %w", name, err)
	}

	s.log.Debug().Str("database", name).Str("dest", destPath).Msg("Database snapshot written")
	return nil
}
