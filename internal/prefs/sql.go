package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

type queries struct {
	get    string
	upsert string
	del    string
}

var dialectQueries = map[dialect]queries{
	dialectPostgres: {
		get: `SELECT value FROM preferences WHERE key = $1`,
		upsert: `INSERT INTO preferences (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		del: `DELETE FROM preferences WHERE key = $1`,
	},
	dialectSQLite: {
		get: `SELECT value FROM preferences WHERE key = ?`,
		upsert: `INSERT INTO preferences (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		del: `DELETE FROM preferences WHERE key = ?`,
	},
}

// SQLStore keeps preferences in a "preferences" table. Postgres gets its
// schema from the database migrations; sqlite creates it on open.
type SQLStore struct {
	db     *sql.DB
	q      queries
	ownsDB bool
}

// NewPostgresStore uses an already migrated postgres handle. Close leaves the
// handle open.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: dialectQueries[dialectPostgres]}
}

// OpenSQLiteStore opens (or creates) a sqlite database file at path.
func OpenSQLiteStore(path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS preferences (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLStore{db: db, q: dialectQueries[dialectSQLite], ownsDB: true}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.QueryRowContext(ctx, s.q.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query preference %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.q.upsert, key, value); err != nil {
		return fmt.Errorf("save preference %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.q.del, key); err != nil {
		return fmt.Errorf("delete preference %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil || !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
