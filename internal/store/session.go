package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ivoronin/duphound/internal/types"
)

// CreateSession persists a brand-new session row with the status, stage and
// other fields sess carries.
func (s *Store) CreateSession(sess *types.Session) error {
	cfgJSON, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal session config: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, status, stage, config, config_hash, progress, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, string(sess.Status), string(sess.Stage), string(cfgJSON), sess.ConfigHash,
		sess.Progress, sess.Message, sess.CreatedAt.Unix(), sess.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateProgress writes status/stage/progress/message unconditionally; the
// 500ms DB-write throttle for routine progress is enforced by the caller
// (internal/orchestrator), which writes status transitions (pause, failure,
// finalize) immediately. Kept as a plain write here so the store itself
// has no hidden timing behavior.
func (s *Store) UpdateProgress(sessionID string, status types.Status, stage types.Stage, progress float64, message string, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET status = ?, stage = ?, progress = ?, message = ?, updated_at = ?
		WHERE id = ?
	`, string(status), string(stage), progress, message, now.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	return nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(id string) (*types.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, status, stage, config, config_hash, progress, message, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)
	return scanSession(row)
}

// FindResumable returns the most recent paused session matching configHash,
// or nil if none exists.
func (s *Store) FindResumable(configHash string) (*types.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, status, stage, config, config_hash, progress, message, created_at, updated_at
		FROM sessions WHERE config_hash = ? AND status = 'paused'
		ORDER BY updated_at DESC LIMIT 1
	`, configHash)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// ListSessions returns all sessions ordered newest-first.
func (s *Store) ListSessions() ([]*types.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, status, stage, config, config_hash, progress, message, created_at, updated_at
		FROM sessions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GCSessions deletes all but the keepLatest most recently created sessions.
// Foreign-key cascades remove their files/hashes/results/selected rows.
func (s *Store) GCSessions(keepLatest int) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM sessions WHERE id NOT IN (
			SELECT id FROM sessions ORDER BY created_at DESC LIMIT ?
		)
	`, keepLatest)
	if err != nil {
		return 0, fmt.Errorf("gc sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("gc sessions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*types.Session, error) {
	return scanSessionAny(row)
}

func scanSessionRows(rows *sql.Rows) (*types.Session, error) {
	return scanSessionAny(rows)
}

func scanSessionAny(sc scanner) (*types.Session, error) {
	var sess types.Session
	var status, stage, cfgJSON string
	var createdAt, updatedAt int64
	if err := sc.Scan(&sess.ID, &status, &stage, &cfgJSON, &sess.ConfigHash,
		&sess.Progress, &sess.Message, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sess.Status = types.Status(status)
	sess.Stage = types.Stage(stage)
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if err := json.Unmarshal([]byte(cfgJSON), &sess.Config); err != nil {
		return nil, fmt.Errorf("unmarshal session config: %w", err)
	}
	return &sess, nil
}

// PutFiles batches session_files inserts into transactions of at most
// batchSize rows, mirroring the teacher's map-then-sorted-pass idiom for
// deterministic, memory-bounded writes.
func (s *Store) PutFiles(sessionID string, files []*types.FileRecord) error {
	const batchSize = 500
	for start := 0; start < len(files); start += batchSize {
		end := min(start+batchSize, len(files))
		if err := s.putFilesBatch(sessionID, files[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) putFilesBatch(sessionID string, batch []*types.FileRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin session_files batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO session_files (session_id, path, size, mtime, dev, ino, nlink)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, path) DO UPDATE SET
			size = excluded.size, mtime = excluded.mtime,
			dev = excluded.dev, ino = excluded.ino, nlink = excluded.nlink
	`)
	if err != nil {
		return fmt.Errorf("prepare session_files insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range batch {
		if _, err := stmt.Exec(sessionID, f.Path, f.Size, f.ModTime, int64(f.Dev), int64(f.Ino), int64(f.Nlink)); err != nil {
			return fmt.Errorf("insert session_files: %w", err)
		}
	}
	return tx.Commit()
}

// LoadFiles returns every session_files row for a session.
func (s *Store) LoadFiles(sessionID string) ([]*types.FileRecord, error) {
	rows, err := s.db.Query(`SELECT path, size, mtime, dev, ino, nlink FROM session_files WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session_files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.FileRecord
	for rows.Next() {
		f := &types.FileRecord{}
		if err := rows.Scan(&f.Path, &f.Size, &f.ModTime, &f.Dev, &f.Ino, &f.Nlink); err != nil {
			return nil, fmt.Errorf("scan session_files: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// HashEntry is one (path, hash_type) -> hash row bound for session_hashes.
type HashEntry struct {
	Path     string
	HashType string
	Hash     []byte
}

// PutHashes batches and deduplicates session_hashes writes: within a batch,
// a later entry for the same (path, hash_type) silently wins, matching the
// spec's "written at most once per batch" contract.
func (s *Store) PutHashes(sessionID string, entries []HashEntry) error {
	const batchSize = 500
	deduped := dedupeHashEntries(entries)
	for start := 0; start < len(deduped); start += batchSize {
		end := min(start+batchSize, len(deduped))
		if err := s.putHashesBatch(sessionID, deduped[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func dedupeHashEntries(entries []HashEntry) []HashEntry {
	seen := make(map[string]int, len(entries))
	out := make([]HashEntry, 0, len(entries))
	for _, e := range entries {
		key := e.Path + "\x00" + e.HashType
		if idx, ok := seen[key]; ok {
			out[idx] = e
			continue
		}
		seen[key] = len(out)
		out = append(out, e)
	}
	return out
}

func (s *Store) putHashesBatch(sessionID string, batch []HashEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin session_hashes batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO session_hashes (session_id, path, hash_type, hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, path, hash_type) DO UPDATE SET hash = excluded.hash
	`)
	if err != nil {
		return fmt.Errorf("prepare session_hashes insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range batch {
		if _, err := stmt.Exec(sessionID, e.Path, e.HashType, e.Hash); err != nil {
			return fmt.Errorf("insert session_hashes: %w", err)
		}
	}
	return tx.Commit()
}

// LoadHashes returns every session_hashes row for a session, so a resumed
// run can replay completed hash stages without recomputation.
func (s *Store) LoadHashes(sessionID string) ([]HashEntry, error) {
	rows, err := s.db.Query(`SELECT path, hash_type, hash FROM session_hashes WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session_hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HashEntry
	for rows.Next() {
		var e HashEntry
		if err := rows.Scan(&e.Path, &e.HashType, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan session_hashes: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutResults adds group_key -> path membership rows for the session. Rows
// already present for the same (group_key, path) are left as they are, and
// rows written earlier for other group keys are not removed.
func (s *Store) PutResults(sessionID string, groupKey string, paths []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin session_results: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO session_results (session_id, group_key, path) VALUES (?, ?, ?)
		ON CONFLICT(session_id, group_key, path) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare session_results insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range paths {
		if _, err := stmt.Exec(sessionID, groupKey, p); err != nil {
			return fmt.Errorf("insert session_results: %w", err)
		}
	}
	return tx.Commit()
}

// SetSelected records the external UI's per-path selection state.
func (s *Store) SetSelected(sessionID, path string, selected bool) error {
	sel := 0
	if selected {
		sel = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO session_selected (session_id, path, selected) VALUES (?, ?, ?)
		ON CONFLICT(session_id, path) DO UPDATE SET selected = excluded.selected
	`, sessionID, path, sel)
	if err != nil {
		return fmt.Errorf("set selected: %w", err)
	}
	return nil
}
