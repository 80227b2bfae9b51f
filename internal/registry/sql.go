package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fsec/internal/logging"
	"fsec/internal/storage"
)

// SQLStore keeps the registry in an operators table on sqlite or postgres.
type SQLStore struct {
	*Index
	conn    *sql.DB
	dialect storage.Dialect
	logger  *zap.Logger
}

func OpenSQLStore(ctx context.Context, d storage.Dialect, dsn string, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := storage.OpenConn(ctx, d, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s registry %s: %w", d, logging.SanitizeConnectionString(dsn), err)
	}
	logger.Debug("registry connected", zap.String("dialect", string(d)), zap.String("dsn", logging.SanitizeConnectionString(dsn)))
	s := &SQLStore{Index: NewIndex(), conn: conn, dialect: d, logger: logger}
	if err := s.init(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS operators (
  normalized_name TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  alias TEXT,
  present_score INTEGER NOT NULL DEFAULT 0,
  fuzzy_score INTEGER NOT NULL DEFAULT 0,
  method TEXT NOT NULL DEFAULT '',
  source TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("init operators: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_operators_updated_at ON operators(updated_at)`)
	return err
}

func (s *SQLStore) Load(ctx context.Context) error {
	recs, err := s.query(ctx, `SELECT normalized_name, name, COALESCE(alias, ''), present_score, fuzzy_score, method, source, created_at, updated_at FROM operators`)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	s.replace(recs)
	s.logger.Debug("registry loaded", zap.String("dialect", string(s.dialect)), zap.Int("records", s.Len()))
	return nil
}

// Save upserts every record and deletes removed keys in one transaction.
func (s *SQLStore) Save(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(`
INSERT INTO operators (normalized_name, name, alias, present_score, fuzzy_score, method, source, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(normalized_name) DO UPDATE SET
  name = excluded.name,
  alias = excluded.alias,
  present_score = excluded.present_score,
  fuzzy_score = excluded.fuzzy_score,
  method = excluded.method,
  source = excluded.source,
  updated_at = excluded.updated_at`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range s.all() {
		var alias any
		if rec.Alias != "" {
			alias = rec.Alias
		}
		created, updated := stamp(rec)
		if _, err := stmt.ExecContext(ctx, rec.NormalizedName, rec.Name, alias, rec.PresentScore, rec.FuzzyScore, rec.Method, rec.Source, created, updated); err != nil {
			return fmt.Errorf("save operator %q: %w", rec.NormalizedName, err)
		}
	}
	for _, key := range s.pendingRemovals() {
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM operators WHERE normalized_name = ?`), key); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.clearRemovals()
	return nil
}

func (s *SQLStore) Refresh(ctx context.Context) error {
	since := s.newest()
	recs, err := s.query(ctx, `SELECT normalized_name, name, COALESCE(alias, ''), present_score, fuzzy_score, method, source, created_at, updated_at FROM operators WHERE updated_at > ?`, storage.FormatTime(since))
	if err != nil {
		return fmt.Errorf("refresh registry: %w", err)
	}
	n := s.merge(recs)
	s.logger.Debug("registry refreshed", zap.String("dialect", string(s.dialect)), zap.Int("merged", n))
	return nil
}

func (s *SQLStore) Close() error {
	return s.conn.Close()
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rec              Record
			created, updated string
		)
		if err := rows.Scan(&rec.NormalizedName, &rec.Name, &rec.Alias, &rec.PresentScore, &rec.FuzzyScore, &rec.Method, &rec.Source, &created, &updated); err != nil {
			return nil, err
		}
		var errC, errU error
		rec.CreatedAt, errC = storage.ParseTime(created)
		rec.UpdatedAt, errU = storage.ParseTime(updated)
		if err := errors.Join(errC, errU); err != nil {
			s.logger.Warn("skipping registry row with bad timestamp", zap.String("key", rec.NormalizedName), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func stamp(rec Record) (string, string) {
	created, updated := rec.CreatedAt, rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if created.IsZero() {
		created = updated
	}
	return storage.FormatTime(created), storage.FormatTime(updated)
}
