package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fsec/internal"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in UTC at fixed width so stored values sort as text.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// DB stores normalized schedules, the per-file run log and batch metadata.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

type Run struct {
	RunID         string
	Source        string
	Status        internal.Severity
	Rows          int
	OperatorAlias string
	Diagnostics   map[internal.Severity]map[string]int
	DurationMs    int64
	CreatedAt     time.Time
}

func Open(ctx context.Context, d Dialect, dsn string) (*DB, error) {
	conn, err := OpenConn(ctx, d, dsn)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, dialect: d}
	if err := db.init(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS schedules (
  id %s,
  run_id TEXT NOT NULL,
  source TEXT NOT NULL,
  operator_alias TEXT,
  api14 TEXT,
  record_json TEXT NOT NULL,
  created_at TEXT NOT NULL
)`, d.dialect.AutoID()),
		`CREATE INDEX IF NOT EXISTS idx_schedules_run ON schedules(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_api14 ON schedules(api14)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS runs (
  id %s,
  run_id TEXT NOT NULL,
  source TEXT NOT NULL,
  status TEXT NOT NULL,
  row_count INTEGER NOT NULL,
  operator_alias TEXT,
  diagnostics_json TEXT NOT NULL,
  duration_ms INTEGER NOT NULL,
  created_at TEXT NOT NULL
)`, d.dialect.AutoID()),
		`CREATE INDEX IF NOT EXISTS idx_runs_run ON runs(run_id)`,
		`CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
)`,
	}
	for _, stmt := range stmts {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// WriteRecords appends every row of the set to schedules in one transaction.
func (d *DB) WriteRecords(ctx context.Context, set internal.RecordSet) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, d.dialect.Rebind(`
INSERT INTO schedules (run_id, source, operator_alias, api14, record_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := FormatTime(time.Now())
	aliasIdx := set.Frame.Index("operator_alias")
	apiIdx := set.Frame.Index("api14")
	for _, row := range set.Frame.Rows {
		record := make(map[string]any, len(set.Frame.Columns))
		for i, col := range set.Frame.Columns {
			record[col] = jsonCell(row[i])
		}
		blob, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, set.RunID, set.Source, nullable(row, aliasIdx), nullable(row, apiIdx), string(blob), now); err != nil {
			return fmt.Errorf("insert schedule row: %w", err)
		}
	}
	return tx.Commit()
}

// ListSchedules returns the decoded rows written for a run, in insert order.
func (d *DB) ListSchedules(ctx context.Context, runID string) ([]map[string]any, error) {
	rows, err := d.conn.QueryContext(ctx, d.dialect.Rebind(`SELECT record_json FROM schedules WHERE run_id = ? ORDER BY id`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		record := map[string]any{}
		if err := json.Unmarshal([]byte(blob), &record); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(ctx context.Context, run Run) error {
	diagJSON, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err = d.conn.ExecContext(ctx, d.dialect.Rebind(`
INSERT INTO runs (run_id, source, status, row_count, operator_alias, diagnostics_json, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		run.RunID, run.Source, string(run.Status), run.Rows, run.OperatorAlias, string(diagJSON), run.DurationMs, FormatTime(run.CreatedAt))
	return err
}

func (d *DB) ListRuns(ctx context.Context, runID string) ([]Run, error) {
	rows, err := d.conn.QueryContext(ctx, d.dialect.Rebind(`
SELECT run_id, source, status, row_count, COALESCE(operator_alias, ''), diagnostics_json, duration_ms, created_at
FROM runs WHERE run_id = ? ORDER BY id`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var (
			r         Run
			status    string
			diagJSON  string
			createdAt string
		)
		if err := rows.Scan(&r.RunID, &r.Source, &status, &r.Rows, &r.OperatorAlias, &diagJSON, &r.DurationMs, &createdAt); err != nil {
			return nil, err
		}
		r.Status = internal.Severity(status)
		_ = json.Unmarshal([]byte(diagJSON), &r.Diagnostics)
		r.CreatedAt, _ = ParseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, d.dialect.Rebind(`
INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`), key, value, FormatTime(time.Now()))
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, d.dialect.Rebind(`SELECT value FROM metadata WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func jsonCell(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	return v
}

func nullable(row []any, idx int) any {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return nil
	}
	if s, ok := row[idx].(string); ok {
		return s
	}
	return fmt.Sprint(row[idx])
}
