// Package store provides persistent server state backed by an embedded SQLite
// database: accounts, friendships, groups, and message archives. Sessions and
// other live connection state are deliberately not stored here; a restart
// must never resurrect a session.
//
// Migration design follows the usual pattern: SQL statements live in the
// [migrations] slice as ordered strings and each is applied exactly once,
// tracked in the schema_migrations table. To change the schema, append a new
// entry; never edit or reorder existing ones.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when an insert violates a uniqueness rule.
var ErrDuplicate = errors.New("store: duplicate")

var migrations = []string{
	// v1: accounts
	`CREATE TABLE IF NOT EXISTS users (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		username        TEXT NOT NULL UNIQUE,
		password_digest TEXT NOT NULL,
		email           TEXT NOT NULL,
		created_at      INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2: friendship edges; a 'pending' row is a directed invite from
	// user_a to user_b, an 'accepted' row is stored once with user_a < user_b
	`CREATE TABLE IF NOT EXISTS friends (
		user_a INTEGER NOT NULL,
		user_b INTEGER NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('pending','accepted')),
		PRIMARY KEY (user_a, user_b)
	)`,
	// v3, v4: groups and membership
	`CREATE TABLE IF NOT EXISTS groups (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		owner_id   INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id INTEGER NOT NULL,
		user_id  INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,
	// v5: private messages; msg_id is monotonic per ordered (from,to) pair,
	// rowid gives global arrival order
	`CREATE TABLE IF NOT EXISTS pm_messages (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		msg_id  INTEGER NOT NULL,
		from_id INTEGER NOT NULL,
		to_id   INTEGER NOT NULL,
		content BLOB NOT NULL,
		ts      INTEGER NOT NULL
	)`,
	// v6: group messages; msg_id is monotonic per group
	`CREATE TABLE IF NOT EXISTS gm_messages (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		msg_id   INTEGER NOT NULL,
		group_id INTEGER NOT NULL,
		from_id  INTEGER NOT NULL,
		content  BLOB NOT NULL,
		ts       INTEGER NOT NULL
	)`,
	// v7, v8: lookup indexes for the history paths
	`CREATE INDEX IF NOT EXISTS idx_pm_pair ON pm_messages(from_id, to_id, msg_id)`,
	`CREATE INDEX IF NOT EXISTS idx_gm_group ON gm_messages(group_id, msg_id)`,
	// v9: enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes the persistence operations used
// by the chat engine.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Allow multiple read connections but serialise writes.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		slog.Warn("store: WAL mode", "err", err)
	}
	// Busy timeout to avoid SQLITE_BUSY on concurrent access.
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		slog.Warn("store: busy_timeout", "err", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		slog.Debug("store: applied migration", "version", v)
	}
	return nil
}
