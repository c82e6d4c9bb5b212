package patchlib

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// History is a supplementary, non-authoritative audit trail of applied
// patches. It is never consulted to decide what to (re)download — the
// PatcherCache file remains the single source of truth for that — but it
// gives operators a queryable record of what ran, when, from which mirror.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if necessary) the history database at path
// and ensures its schema exists.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	const schema = `
CREATE TABLE IF NOT EXISTS applied_patches (
	patch_index INTEGER NOT NULL,
	file_name   TEXT NOT NULL,
	mirror      TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	applied_at  TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &History{db: db}, nil
}

// Close releases the underlying database handle.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Record appends one row for a successfully applied patch. Failures are
// the caller's to log-and-ignore, matching the audit trail's "best effort,
// never blocking correctness" role.
func (h *History) Record(index uint64, fileName, mirror, strategy string) error {
	if h == nil || h.db == nil {
		return nil
	}
	_, err := h.db.Exec(
		`INSERT INTO applied_patches (patch_index, file_name, mirror, strategy, applied_at) VALUES (?, ?, ?, ?, ?)`,
		index, fileName, mirror, strategy, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// AppliedPatch is one row of recorded history.
type AppliedPatch struct {
	Index     uint64
	FileName  string
	Mirror    string
	Strategy  string
	AppliedAt string
}

// Recent returns the last n recorded applications, most recent first.
func (h *History) Recent(n int) ([]AppliedPatch, error) {
	if h == nil || h.db == nil {
		return nil, nil
	}
	rows, err := h.db.Query(
		`SELECT patch_index, file_name, mirror, strategy, applied_at FROM applied_patches ORDER BY rowid DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppliedPatch
	for rows.Next() {
		var a AppliedPatch
		if err := rows.Scan(&a.Index, &a.FileName, &a.Mirror, &a.Strategy, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
