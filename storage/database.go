package storage

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// memoryDSN keeps the database in process memory; nothing outlives the Store.
const memoryDSN = "file::memory:?_foreign_keys=on"

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS received_files (
  file_id      INTEGER PRIMARY KEY,
  filename     TEXT NOT NULL,
  data         BLOB NOT NULL,
  filesize     INTEGER NOT NULL,
  checksum     TEXT NOT NULL,
  received_at  INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_received_files_time
ON received_files (received_at, file_id);
`,
}

// Store is the session-local table of received files.
//
// File ids come from a counter owned by the Store. The counter advances for
// every received file frame, including frames whose content was empty and
// therefore never recorded.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	nextID int

	closeOnce sync.Once
}

// Open creates an empty in-memory store and runs schema migrations.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite3", memoryDSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Every pooled connection to :memory: would see its own database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close drops the database and every file held in it.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}

	return nil
}
