package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Fingerprint is a cached partial/full hash pair for one path, valid only
// when the witness (size, mtime) still matches the on-disk file.
type Fingerprint struct {
	Path        string
	Size        int64
	MTime       int64
	PartialHash []byte
	FullHash    []byte
	LastSeen    int64
}

// LookupFingerprint returns the cached row for path only when its stored
// (size, mtime) witness matches exactly; any mismatch is a stale row and
// LookupFingerprint reports a miss rather than returning stale data.
func (s *Store) LookupFingerprint(path string, size, mtime int64) (*Fingerprint, error) {
	row := s.db.QueryRow(
		`SELECT size, mtime, partial_hash, full_hash, last_seen FROM fingerprints WHERE path = ?`,
		path,
	)
	var fp Fingerprint
	fp.Path = path
	var partial, full sql.NullString
	if err := row.Scan(&fp.Size, &fp.MTime, &partial, &full, &fp.LastSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup fingerprint: %w", err)
	}
	if fp.Size != size || fp.MTime != mtime {
		return nil, nil
	}
	if partial.Valid {
		fp.PartialHash = []byte(partial.String)
	}
	if full.Valid {
		fp.FullHash = []byte(full.String)
	}
	return &fp, nil
}

// TouchLastSeen refreshes last_seen on a cache hit without recomputing
// anything, so the row survives the next age-based retention sweep.
func (s *Store) TouchLastSeen(path string, now int64) error {
	_, err := s.db.Exec(`UPDATE fingerprints SET last_seen = ? WHERE path = ?`, now, path)
	if err != nil {
		return fmt.Errorf("touch fingerprint: %w", err)
	}
	return nil
}

// PutPartialHash upserts a partial-hash result, resetting full_hash to NULL
// whenever the witness (size, mtime) changed so a stale full hash is never
// returned alongside a fresh partial one.
func (s *Store) PutPartialHash(path string, size, mtime int64, hash []byte, now int64) error {
	_, err := s.db.Exec(`
		INSERT INTO fingerprints (path, size, mtime, partial_hash, full_hash, last_seen)
		VALUES (?, ?, ?, ?, NULL, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime = excluded.mtime,
			partial_hash = excluded.partial_hash,
			full_hash = CASE WHEN fingerprints.size = excluded.size AND fingerprints.mtime = excluded.mtime
				THEN fingerprints.full_hash ELSE NULL END,
			last_seen = excluded.last_seen
	`, path, size, mtime, hash, now)
	if err != nil {
		return fmt.Errorf("put partial hash: %w", err)
	}
	return nil
}

// PutFullHash upserts a full-hash result for an already-witnessed row.
func (s *Store) PutFullHash(path string, size, mtime int64, hash []byte, now int64) error {
	_, err := s.db.Exec(`
		INSERT INTO fingerprints (path, size, mtime, partial_hash, full_hash, last_seen)
		VALUES (?, ?, ?, NULL, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime = excluded.mtime,
			full_hash = excluded.full_hash,
			last_seen = excluded.last_seen
	`, path, size, mtime, hash, now)
	if err != nil {
		return fmt.Errorf("put full hash: %w", err)
	}
	return nil
}

// SweepOlderThan deletes fingerprint rows whose last_seen predates the
// cutoff, the age-based retention policy. It runs only when invoked (the
// `duphound cache sweep` command); opening the store does not sweep.
func (s *Store) SweepOlderThan(cutoff int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM fingerprints WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep fingerprints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep fingerprints: %w", err)
	}
	return n, nil
}

// SweepOlderThanDays is a convenience wrapper expressing the policy in the
// days unit the spec and CLI use.
func (s *Store) SweepOlderThanDays(days int, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -days).Unix()
	return s.SweepOlderThan(cutoff)
}
