package storage

import (
	"database/sql"
	"fmt"
	"time"

	"can-telemetry-dashboard/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store backed by a single samples table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and initializes) an SQLite database.
// Example DSN: file:dashboard-history.db?_busy_timeout=5000
func NewSQLiteStore(dsn string) (Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newSQLiteStore(db), nil
}

func newSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS samples (
  field TEXT NOT NULL,
  ts INTEGER NOT NULL,
  value REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_field_ts ON samples(field, ts);
`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSample(smp model.Sample) error {
	_, err := s.db.Exec(`INSERT INTO samples(field, ts, value) VALUES(?, ?, ?)`,
		string(smp.Field), smp.Timestamp.UnixMilli(), smp.Value)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFields() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT field FROM samples ORDER BY field`)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) QuerySamples(field string, start, end *time.Time) ([]model.Sample, error) {
	q := `SELECT ts, value FROM samples WHERE field = ?`
	args := []any{field}
	if start != nil {
		q += ` AND ts >= ?`
		args = append(args, start.UnixMilli())
	}
	if end != nil {
		q += ` AND ts <= ?`
		args = append(args, end.UnixMilli())
	}
	q += ` ORDER BY ts ASC`
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()
	var out []model.Sample
	for rows.Next() {
		var ts int64
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, err
		}
		out = append(out, model.Sample{
			Field:     model.Field(field),
			Value:     v,
			Timestamp: time.UnixMilli(ts).UTC(),
		})
	}
	return out, rows.Err()
}
