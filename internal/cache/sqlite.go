package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS cache_entries (
		key        TEXT PRIMARY KEY,
		written_at INTEGER NOT NULL,
		payload    BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_locks (
		name       TEXT PRIMARY KEY,
		owner      TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
}

// SQLiteStore keeps entries and locks in a SQLite database. It satisfies both
// Store and LockStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("cache: create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: exec %s: %w", pragma, err)
		}
	}

	for _, stmt := range sqliteMigrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: migrate sqlite: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get loads the entry for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		writtenAt int64
		payload   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT written_at, payload FROM cache_entries WHERE key = ?`, key).
		Scan(&writtenAt, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: select entry: %w", err)
	}

	entry := &Entry{Key: key, WrittenAt: time.Unix(0, writtenAt)}
	if err := unmarshal(payload, &entry.Tickets); err != nil {
		return nil, err
	}
	return entry, nil
}

// Set upserts the entry in a single statement.
func (s *SQLiteStore) Set(ctx context.Context, entry *Entry) error {
	payload, err := marshal(entry.Tickets)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, written_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET written_at = excluded.written_at, payload = excluded.payload`,
		entry.Key, entry.WrittenAt.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("cache: upsert entry: %w", err)
	}
	return nil
}

// AcquireLock inserts the lock row unless one already exists.
func (s *SQLiteStore) AcquireLock(ctx context.Context, lock Lock) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_locks (name, owner, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		lock.Name, lock.Owner, lock.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("cache: insert lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cache: insert lock: %w", err)
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}

// ReadLock returns the named lock.
func (s *SQLiteStore) ReadLock(ctx context.Context, name string) (*Lock, error) {
	lock := &Lock{Name: name}
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, created_at FROM refresh_locks WHERE name = ?`, name).
		Scan(&lock.Owner, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: select lock: %w", err)
	}
	lock.CreatedAt = time.Unix(0, createdAt)
	return lock, nil
}

// ReleaseLock deletes the named lock if owner still holds it.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, name, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_locks WHERE name = ? AND owner = ?`, name, owner); err != nil {
		return fmt.Errorf("cache: delete lock: %w", err)
	}
	return nil
}
