// Package archive keeps a permanent record of upstream fetches.
// Every real network download is logged with its source, HTTP status,
// payload size and checksum, so vendor data can be traced back to the
// exact response that produced it.
package archive

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    url TEXT NOT NULL,
    status INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    sha256 TEXT NOT NULL,
    fetched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetches_fetched_at ON fetches(fetched_at);
CREATE INDEX IF NOT EXISTS idx_fetches_source ON fetches(source);
`

// FetchRecord is one logged download of a vendor file.
type FetchRecord struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	SizeBytes int64     `json:"size_bytes"`
	SHA256    string    `json:"sha256"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store provides access to the fetch archive database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the archive database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	// Verify database is accessible
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Store{
		db:  db,
		log: log.With().Str("component", "archive").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for backup registration.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Checksum returns the hex SHA-256 of a payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// RecordFetch appends one fetch record. FetchedAt defaults to now when zero.
func (s *Store) RecordFetch(rec FetchRecord) error {
	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	_, err := s.db.Exec(
		"INSERT INTO fetches (source, url, status, size_bytes, sha256, fetched_at) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Source, rec.URL, rec.Status, rec.SizeBytes, rec.SHA256, fetchedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}

	s.log.Debug().
		Str("source", rec.Source).
		Int("status", rec.Status).
		Int64("size_bytes", rec.SizeBytes).
		Msg("Recorded fetch")

	return nil
}

// RecentFetches returns the newest records first, at most limit of them.
func (s *Store) RecentFetches(limit int) ([]FetchRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, source, url, status, size_bytes, sha256, fetched_at FROM fetches ORDER BY fetched_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetches: %w", err)
	}
	defer rows.Close()

	var records []FetchRecord
	for rows.Next() {
		var rec FetchRecord
		var fetchedAt int64

		err := rows.Scan(&rec.ID, &rec.Source, &rec.URL, &rec.Status, &rec.SizeBytes, &rec.SHA256, &fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fetch record: %w", err)
		}

		rec.FetchedAt = time.Unix(fetchedAt, 0)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fetch records: %w", err)
	}

	return records, nil
}

// Count returns the total number of archived fetches.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM fetches").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count fetches: %w", err)
	}
	return count, nil
}

// PruneOlderThan deletes records fetched more than age ago.
// Returns the number of rows deleted.
func (s *Store) PruneOlderThan(age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).Unix()

	result, err := s.db.Exec("DELETE FROM fetches WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune fetches: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
