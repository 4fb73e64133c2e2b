package audit

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Mirror duplicates audit records into a relational table for ad-hoc
// querying. The JSON files remain the source of truth; the mirror is
// best-effort.
type Mirror struct {
	db *sql.DB
}

const mirrorSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	ts INTEGER NOT NULL,
	path TEXT NOT NULL,
	author TEXT,
	intent TEXT,
	old_hash TEXT,
	new_hash TEXT,
	diff_hash TEXT,
	allow INTEGER NOT NULL,
	explanation_quality REAL,
	epistemic_risk REAL,
	valence REAL,
	arousal REAL,
	novelty REAL,
	self_awareness REAL,
	wm_dimension INTEGER,
	rationale TEXT,
	signature TEXT,
	prev_hash TEXT
);
CREATE INDEX IF NOT EXISTS idx_reports_ts ON reports(ts);
CREATE INDEX IF NOT EXISTS idx_reports_path ON reports(path);
`

// OpenMirror opens (or creates) the SQLite mirror at path, in WAL
// mode so readers never block the writer.
func OpenMirror(path string) (*Mirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open mirror db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	m := &Mirror{db: db}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// NewMirror wraps an existing database handle. The schema must
// already exist; used by tests injecting a mock.
func NewMirror(db *sql.DB) *Mirror { return &Mirror{db: db} }

func (m *Mirror) migrate() error {
	if _, err := m.db.Exec(mirrorSchema); err != nil {
		return fmt.Errorf("migrate mirror schema: %w", err)
	}
	return nil
}

const insertReport = `INSERT INTO reports (
	id, ts, path, author, intent,
	old_hash, new_hash, diff_hash,
	allow, explanation_quality, epistemic_risk,
	valence, arousal, novelty, self_awareness,
	wm_dimension, rationale, signature, prev_hash
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert mirrors one record.
func (m *Mirror) Insert(r *Record) error {
	allow := 0
	if r.Allow {
		allow = 1
	}
	_, err := m.db.Exec(insertReport,
		r.ID, r.Timestamp, r.Path, r.Author, r.Intent,
		r.OldHash, r.NewHash, r.DiffHash,
		allow, r.ExplanationQuality, r.EpistemicRisk,
		r.Valence, r.Arousal, r.Novelty, r.SelfAwareness,
		r.WorkingMemoryDim, r.Rationale, r.Signature, r.PrevHash,
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.ID, err)
	}
	return nil
}

// CountByPath returns the number of mirrored reports for a path.
func (m *Mirror) CountByPath(path string) (int, error) {
	var n int
	err := m.db.QueryRow("SELECT COUNT(*) FROM reports WHERE path = ?", path).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

// RecentIDs returns up to limit report ids, newest first.
func (m *Mirror) RecentIDs(limit int) ([]string, error) {
	rows, err := m.db.Query("SELECT id FROM reports ORDER BY ts DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan report id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return ids, nil
}

// Close releases the database handle.
func (m *Mirror) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
