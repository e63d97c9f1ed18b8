// Package store provides the durable substrate for both the fingerprint
// cache and the session state machine. Both share one modernc.org/sqlite
// database: the spec requires the two to share a storage substrate, and two
// pack examples (maisi-unraid-filehasher, ftarlao-duplito) independently
// reach for pure-Go sqlite for the same file-hash-caching domain.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schemaMajor is bumped whenever a migration changes table shape in a way
// old readers cannot tolerate. Open refuses to operate against a database
// recorded with a different major version.
const schemaMajor = 1

// Store wraps a pooled *sql.DB sized to the caller's configured worker
// count. database/sql's pool is itself goroutine-safe, so this realizes the
// spec's "per-worker handles held in thread-local slots" as a bounded
// connection pool rather than literal thread-local storage.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// DefaultPath resolves the duphound database path under the user's
// application-data directory, the way Go toolchains resolve their own
// caches via os.UserConfigDir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "duphound", "duphound.db"), nil
}

// Open creates or opens the database at path, applies schema migrations,
// and sizes the connection pool to maxWorkers. WAL mode lets readers
// proceed without blocking writers; synchronous=NORMAL is the
// throughput-favoring durability mode the spec calls for (a crash can lose
// the last few commits, never corrupt the database).
func Open(path string, maxWorkers int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	db.SetMaxOpenConns(maxWorkers)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, log: slog.Default().With("component", "store")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema if absent (CREATE TABLE IF NOT EXISTS makes
// this idempotent) and then verifies the recorded major version matches,
// refusing to operate against a database from an incompatible future
// version.
func (s *Store) migrate() error {
	if err := s.createSchema(); err != nil {
		return err
	}

	var value string
	row := s.db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'major'`)
	if err := row.Scan(&value); err != nil {
		return fmt.Errorf("store_corrupt: read schema_meta: %w", err)
	}
	if value != fmt.Sprintf("%d", schemaMajor) {
		return fmt.Errorf("store_corrupt: schema major %s unsupported (expected %d)", value, schemaMajor)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fingerprints (
	path         TEXT PRIMARY KEY,
	size         INTEGER NOT NULL,
	mtime        INTEGER NOT NULL,
	partial_hash BLOB,
	full_hash    BLOB,
	last_seen    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_last_seen ON fingerprints(last_seen);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	config      TEXT NOT NULL,
	config_hash TEXT NOT NULL,
	progress    REAL NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_config_hash ON sessions(config_hash);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS session_files (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	path       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	mtime      INTEGER NOT NULL,
	dev        INTEGER NOT NULL,
	ino        INTEGER NOT NULL,
	nlink      INTEGER NOT NULL,
	PRIMARY KEY (session_id, path)
);

CREATE TABLE IF NOT EXISTS session_hashes (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	path       TEXT NOT NULL,
	hash_type  TEXT NOT NULL,
	hash       BLOB NOT NULL,
	PRIMARY KEY (session_id, path, hash_type)
);

CREATE TABLE IF NOT EXISTS session_results (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	group_key  TEXT NOT NULL,
	path       TEXT NOT NULL,
	PRIMARY KEY (session_id, group_key, path)
);

CREATE TABLE IF NOT EXISTS session_selected (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	path       TEXT NOT NULL,
	selected   INTEGER NOT NULL,
	PRIMARY KEY (session_id, path)
);

CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id          TEXT PRIMARY KEY,
	config      TEXT NOT NULL,
	cron_spec   TEXT NOT NULL,
	enabled     INTEGER NOT NULL DEFAULT 1,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_runs (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES scheduled_jobs(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	started_at INTEGER NOT NULL
);
`

func (s *Store) createSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schemaDDL); err != nil {
		return fmt.Errorf("store_corrupt: create schema: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO schema_meta (key, value) VALUES ('major', ?)`,
		fmt.Sprintf("%d", schemaMajor),
	); err != nil {
		return fmt.Errorf("store_corrupt: record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	s.log.Debug("schema initialized", "major", schemaMajor)
	return nil
}
