// Package store persists sessions, memories, scheduled tasks, and
// permission tables in a single SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row is absent, or exists but is not
// owned by the requesting actor. Callers cannot tell the two apart,
// which keeps other actors' records unguessable.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database. All methods are safe for
// concurrent use; SQLite serializes writers internally and callers
// needing stronger ordering (per-session) layer their own locks.
type Store struct {
	db      *sql.DB
	entropy *rand.Rand
}

// New opens or creates the database at dbPath. The containing
// directory is created 0700 and the database file 0600: the tables
// include permission grants, so reads are restricted to the owning
// process.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	// Pre-create the file so the mode is 0600 regardless of umask or
	// driver defaults.
	f, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create db file: %w", err)
	}
	f.Close()

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		actor       TEXT NOT NULL,
		scope       TEXT NOT NULL,
		id          TEXT NOT NULL,
		turns       TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		last_active TEXT NOT NULL,
		PRIMARY KEY (actor, scope)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);

	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		actor      TEXT NOT NULL,
		content    TEXT NOT NULL,
		category   TEXT NOT NULL DEFAULT '',
		tags       TEXT,
		meta       TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_actor ON memories(actor);
	CREATE INDEX IF NOT EXISTS idx_memories_actor_category ON memories(actor, category);

	CREATE TABLE IF NOT EXISTS schedules (
		id         TEXT PRIMARY KEY,
		expr       TEXT NOT NULL,
		prompt     TEXT NOT NULL,
		scope      TEXT NOT NULL,
		creator    TEXT NOT NULL,
		enabled    INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS grants (
		actor      TEXT NOT NULL,
		capability TEXT NOT NULL,
		granted_by TEXT NOT NULL,
		granted_at TEXT NOT NULL,
		PRIMARY KEY (actor, capability)
	);

	CREATE TABLE IF NOT EXISTS role_caps (
		role       TEXT NOT NULL,
		capability TEXT NOT NULL,
		PRIMARY KEY (role, capability)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// escapeLike escapes LIKE metacharacters in a user-supplied query so
// the query matches literally instead of altering the pattern.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
