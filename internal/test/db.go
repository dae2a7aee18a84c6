// Package test provides database fixtures for integration tests.
package test

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/golangmigrator"
)

// TestDB is an isolated, migrated postgres database.
type TestDB struct {
	DB  *sql.DB
	URL string
}

// NewTestDB clones a migrated template database for t. The server comes from
// DATABASE_URL; tests are skipped when it is unset.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration test")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse DATABASE_URL: %v", err)
	}

	port := parsed.Port()
	if port == "" {
		port = "5432"
	}
	password, _ := parsed.User.Password()
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		dbName = "postgres"
	}

	conf := pgtestdb.Config{
		DriverName: "pgx",
		Host:       parsed.Hostname(),
		Port:       port,
		User:       parsed.User.Username(),
		Password:   password,
		Database:   dbName,
		Options:    parsed.RawQuery,
	}
	db := pgtestdb.New(t, conf, golangmigrator.New(migrationsDir(t)))

	return &TestDB{DB: db, URL: conf.URL()}
}

// migrationsDir locates internal/database/migrations relative to this file.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("could not locate test helpers")
	}
	dir := filepath.Join(filepath.Dir(file), "..", "database", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory missing: %v", err)
	}
	return dir
}

// Close closes the database connection.
func (tdb *TestDB) Close() error {
	if tdb.DB != nil {
		return tdb.DB.Close()
	}
	return nil
}

// SeedPreference writes a row directly, bypassing the store under test.
func (tdb *TestDB) SeedPreference(ctx context.Context, key, value string) error {
	_, err := tdb.DB.ExecContext(ctx,
		`INSERT INTO preferences (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}
