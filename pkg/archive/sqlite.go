package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS archive_entries (
	key        TEXT PRIMARY KEY,
	descriptor TEXT NOT NULL,
	payload    BLOB,
	failure    TEXT,
	run_id     TEXT NOT NULL,
	stored_at  TEXT NOT NULL
)`

// SQLiteStore keeps archive entries in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the archive database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("archive entry cannot be nil")
	}

	descriptor, err := json.Marshal(entry.Descriptor)
	if err != nil {
		ArchiveErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	var failure sql.NullString
	if entry.Failure != nil {
		data, err := json.Marshal(entry.Failure)
		if err != nil {
			ArchiveErrors.WithLabelValues("put").Inc()
			return fmt.Errorf("marshal failure: %w", err)
		}
		failure = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO archive_entries (key, descriptor, payload, failure, run_id, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			descriptor = excluded.descriptor,
			payload = excluded.payload,
			failure = excluded.failure,
			run_id = excluded.run_id,
			stored_at = excluded.stored_at
	`, entry.Key, string(descriptor), entry.Payload, failure, entry.RunID,
		entry.StoredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		ArchiveErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("inserting archive entry: %w", err)
	}

	ArchiveWrites.WithLabelValues("sqlite", entry.Outcome()).Inc()
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		descriptor string
		payload    []byte
		failure    sql.NullString
		storedAt   string
	)

	entry := Entry{Key: key}
	err := s.db.QueryRowContext(ctx, `
		SELECT descriptor, payload, failure, run_id, stored_at
		FROM archive_entries WHERE key = ?
	`, key).Scan(&descriptor, &payload, &failure, &entry.RunID, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		ArchiveMisses.Inc()
		return nil, ErrNotArchived
	}
	if err != nil {
		ArchiveErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("querying archive entry: %w", err)
	}

	if err := json.Unmarshal([]byte(descriptor), &entry.Descriptor); err != nil {
		ArchiveErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if failure.Valid {
		entry.Failure = &Failure{}
		if err := json.Unmarshal([]byte(failure.String), entry.Failure); err != nil {
			ArchiveErrors.WithLabelValues("get").Inc()
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
	}
	entry.Payload = payload
	if t, err := time.Parse(time.RFC3339Nano, storedAt); err == nil {
		entry.StoredAt = t
	}

	ArchiveHits.WithLabelValues("sqlite").Inc()
	return &entry, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
