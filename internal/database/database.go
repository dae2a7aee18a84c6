// Package database owns the shared postgres connection used by the SQL
// preference store, the retention scheduler and the realtime notifier.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB is the process-wide postgres handle. It stays nil unless Connect succeeds.
var DB *sql.DB

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Connect opens DATABASE_URL and stores the handle in DB.
func Connect() error {
	url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if url == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	return ConnectURL(url)
}

// ConnectURL opens databaseURL through the pgx driver and pings it.
func ConnectURL(databaseURL string) error {
	db, err := Open(databaseURL)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open returns a pinged pool without touching DB.
func Open(databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Ping checks the shared handle.
func Ping(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database not connected")
	}
	return DB.PingContext(ctx)
}

// Close releases the shared handle. Safe to call when never connected.
func Close() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}
