package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// indexSchema mirrors the teacher's inline schema constant, scoped here to
// one append-only table the JSONL log is replayed into.
const indexSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
  id INTEGER PRIMARY KEY,
  run_id TEXT NOT NULL,
  ts TEXT NOT NULL,
  type TEXT NOT NULL,
  tool TEXT,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  error_code TEXT,
  raw TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_run_id ON audit_entries(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_entries(tool);
CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_entries(type);
`

// Index is a queryable SQLite projection of the append-only JSONL audit
// log, built by replaying log lines in (wardenctl audit query). It is
// never consulted for authorisation — purely a read path over history
// that already happened.
type Index struct {
	db *sql.DB
}

// DefaultIndexPath is where the index lives relative to a data directory.
func DefaultIndexPath(dataDir string) string {
	return filepath.Join(dataDir, "audit", "index.db")
}

// OpenIndex opens or creates the SQLite index at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize audit index schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

// Ingest replays entries into the index. Re-ingesting an already-indexed
// JSONL file produces duplicate rows by id; callers replaying a run's log
// are expected to ingest each run exactly once.
func (i *Index) Ingest(ctx context.Context, entries []Entry) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_entries (run_id, ts, type, tool, duration_ms, error_code, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		var errorCode string
		if e.Error != nil {
			errorCode = string(e.Error.Code)
		}
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			string(e.Type), e.Tool, e.DurationMS, errorCode, string(raw)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Query is a filter set for querying the index, matching wardenctl audit
// query's flags.
type Query struct {
	RunID string
	Tool  string
	Type  Type
	Limit int
}

// QueryResultRow is one row of a Query's results, with the original entry
// recovered from its stored JSON.
type QueryResultRow struct {
	Entry Entry
}

// Search runs q against the index, most recently ingested first.
func (i *Index) Search(ctx context.Context, q Query) ([]QueryResultRow, error) {
	sqlText := "SELECT raw FROM audit_entries WHERE 1=1"
	var args []any

	if q.RunID != "" {
		sqlText += " AND run_id = ?"
		args = append(args, q.RunID)
	}
	if q.Tool != "" {
		sqlText += " AND tool = ?"
		args = append(args, q.Tool)
	}
	if q.Type != "" {
		sqlText += " AND type = ?"
		args = append(args, string(q.Type))
	}
	sqlText += " ORDER BY id DESC"
	if q.Limit > 0 {
		sqlText += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := i.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryResultRow
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, QueryResultRow{Entry: e})
	}
	return out, rows.Err()
}
