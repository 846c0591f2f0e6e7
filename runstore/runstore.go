// Package runstore keeps a SQLite history of training runs next to the
// append-only metrics log.
package runstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ran_at DATETIME NOT NULL,
    accuracy REAL NOT NULL,
    f1_score REAL NOT NULL,
    n_train INTEGER NOT NULL,
    n_test INTEGER NOT NULL,
    model_path TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_ran_at ON runs (ran_at);
`

// Run is one row of the runs table.
type Run struct {
	ID        int64
	RanAt     time.Time
	Accuracy  float64
	F1Score   float64
	NTrain    int
	NTest     int
	ModelPath string
}

// Store is an open run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create run store directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open run store %s", path)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "create run store schema in %s", path)
	}
	return &Store{db: db}, nil
}

// Record inserts r and returns its id.
func (s *Store) Record(ctx context.Context, r Run) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (ran_at, accuracy, f1_score, n_train, n_test, model_path) VALUES (?, ?, ?, ?, ?, ?)`,
		r.RanAt.UTC(), r.Accuracy, r.F1Score, r.NTrain, r.NTest, r.ModelPath)
	if err != nil {
		return 0, errors.Wrap(err, "insert run")
	}
	return res.LastInsertId()
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, ran_at, accuracy, f1_score, n_train, n_test, model_path
        FROM runs
        ORDER BY ran_at DESC, id DESC
        LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RanAt, &r.Accuracy, &r.F1Score, &r.NTrain, &r.NTest, &r.ModelPath); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "iterate runs")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
