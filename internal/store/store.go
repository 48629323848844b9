// Package store persists the attempt log in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMs = 5000
	readerConns   = 4
)

// Store is the attempt log. Writes go through a single connection so SQLite
// never sees competing writers; reads use a small query_only pool.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	path   string

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create directory for %s: %w", path, err)
	}

	writer, err := openDB(path, 1, false)
	if err != nil {
		return nil, fmt.Errorf("store: writer: %w", err)
	}
	reader, err := openDB(path, readerConns, true)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("store: reader: %w", err)
	}

	s := &Store{writer: writer, reader: reader, path: path}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// openDB opens a pool of at most conns connections in WAL mode and checks
// that it answers.
func openDB(path string, conns int, readOnly bool) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMs)
	if readOnly {
		dsn += "&_pragma=query_only(ON)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases both pools. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.writer.Close(), s.reader.Close())
	})
	return s.closeErr
}

// Writer returns the write handle.
func (s *Store) Writer() *sql.DB { return s.writer }

// Reader returns the read-only pool.
func (s *Store) Reader() *sql.DB { return s.reader }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Ping checks both pools.
func (s *Store) Ping() error {
	if err := s.writer.Ping(); err != nil {
		return fmt.Errorf("store: writer ping: %w", err)
	}
	if err := s.reader.Ping(); err != nil {
		return fmt.Errorf("store: reader ping: %w", err)
	}
	return nil
}

// Prune deletes attempts older than retentionDays and returns how many
// rows were removed. A non-positive retention keeps everything.
func (s *Store) Prune(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := formatTime(time.Now().AddDate(0, 0, -retentionDays))

	res, err := s.writer.Exec("DELETE FROM attempts WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}
