package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	DataDir    string
	FilePath   string
	RedisURL   string
	SQLitePath string
	// DB is the migrated postgres handle for BackendPostgres.
	DB *sql.DB
}

// Open builds the configured store. An empty backend means memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		path := opts.FilePath
		if path == "" && opts.DataDir != "" {
			path = filepath.Join(opts.DataDir, "prefs.toml")
		}
		return OpenFileStore(path)
	case BackendRedis:
		return OpenRedisStore(ctx, opts.RedisURL, "")
	case BackendPostgres:
		if opts.DB == nil {
			return nil, fmt.Errorf("postgres preference backend needs a database connection")
		}
		return NewPostgresStore(opts.DB), nil
	case BackendSQLite:
		path := opts.SQLitePath
		if path == "" && opts.DataDir != "" {
			path = filepath.Join(opts.DataDir, "prefs.db")
		}
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown preference backend %q", opts.Backend)
	}
}
