package store

import (
	"fmt"
	"time"
)

type migration struct {
	version int
	sql     string
}

// migrations are applied in order; each runs once.
var migrations = []migration{
	{version: 1, sql: schemaAttempts},
	{version: 2, sql: `CREATE INDEX IF NOT EXISTS idx_attempts_provider ON attempts(provider, timestamp);`},
}

// Migrate applies every migration newer than the recorded version.
func (s *Store) Migrate() error {
	if _, err := s.writer.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("store: create migrations table: %w", err)
	}

	var current int
	if err := s.writer.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("store: migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) apply(m migration) error {
	tx, err := s.writer.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO migrations (version, applied_at) VALUES (?, ?)",
		m.version, formatTime(time.Now()),
	); err != nil {
		return err
	}
	return tx.Commit()
}
