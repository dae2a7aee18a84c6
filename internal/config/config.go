package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	APIBaseURL         string
	APIToken           string
	AccessKey          string
	Port               string
	DataDir            string
	PrefsBackend       string
	RedisURL           string
	DatabaseURL        string
	SQLitePath         string
	TrustedOrigins     []string
	PageSize           int
	MinColumnWidth     int
	SearchDebounce     time.Duration
	PrefsRetentionDays int
}

// Overrides carries command flag values. Empty fields are ignored.
type Overrides struct {
	APIBaseURL   string
	DatabaseURL  string
	Port         string
	DataDir      string
	PrefsBackend string
}

var validBackends = map[string]bool{
	"memory": true, "file": true, "redis": true, "postgres": true, "sqlite": true,
}

// Load loads configuration from multiple sources with priority:
// 1. Command flags (LoadWithOverrides)
// 2. Config file (./mfdash.toml or $XDG_CONFIG_HOME/mfdash/mfdash.toml)
// 3. Environment variables
func Load() (*Config, error) {
	return LoadWithOverrides(Overrides{})
}

// LoadWithOverrides loads config and applies flag overrides.
func LoadWithOverrides(o Overrides) (*Config, error) {
	v := newBaseViper()
	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := buildConfig(v, o)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("mfdash")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	// XDG lookup done by hand so tests can point XDG_CONFIG_HOME elsewhere.
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		v.AddConfigPath(filepath.Join(configHome, "mfdash"))
	}

	return v
}

// source resolves one key: config file first, then the environment.
type source struct {
	v *viper.Viper
}

func (s source) str(key, env, def string) string {
	if s.v.IsSet(key) {
		return s.v.GetString(key)
	}
	if val := os.Getenv(env); val != "" {
		return val
	}
	return def
}

func (s source) int(key, env string, def int) (int, error) {
	if s.v.IsSet(key) {
		return s.v.GetInt(key), nil
	}
	raw := os.Getenv(env)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", env, err)
	}
	return n, nil
}

func buildConfig(v *viper.Viper, o Overrides) (*Config, error) {
	src := source{v: v}

	cfg := &Config{
		APIBaseURL:   src.str("api_base_url", "MFDASH_API_BASE_URL", ""),
		APIToken:     src.str("api_token", "MFDASH_API_TOKEN", ""),
		AccessKey:    src.str("access_key", "MFDASH_ACCESS_KEY", ""),
		Port:         src.str("port", "PORT", "3000"),
		DataDir:      src.str("data_dir", "DATA_DIR", "./data"),
		PrefsBackend: strings.ToLower(src.str("prefs_backend", "MFDASH_PREFS_BACKEND", "memory")),
		RedisURL:     src.str("redis_url", "REDIS_URL", ""),
		DatabaseURL:  src.str("database_url", "DATABASE_URL", ""),
		SQLitePath:   src.str("sqlite_path", "MFDASH_SQLITE_PATH", ""),
	}
	origins := src.str("trusted_origins", "TRUSTED_ORIGINS", "localhost")
	if v.IsSet("trusted_origins") {
		// accepts both a TOML array and a comma-separated string
		origins = strings.Join(v.GetStringSlice("trusted_origins"), ",")
	}
	cfg.TrustedOrigins = parseTrustedOrigins(origins)

	var err error
	if cfg.PageSize, err = src.int("page_size", "MFDASH_PAGE_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.MinColumnWidth, err = src.int("min_column_width", "MFDASH_MIN_COLUMN_WIDTH", 100); err != nil {
		return nil, err
	}
	debounceMS, err := src.int("search_debounce_ms", "MFDASH_SEARCH_DEBOUNCE_MS", 300)
	if err != nil {
		return nil, err
	}
	cfg.SearchDebounce = time.Duration(debounceMS) * time.Millisecond
	if cfg.PrefsRetentionDays, err = src.int("prefs_retention_days", "MFDASH_PREFS_RETENTION_DAYS", 0); err != nil {
		return nil, err
	}

	// Flags win over everything.
	if o.APIBaseURL != "" {
		cfg.APIBaseURL = o.APIBaseURL
	}
	if o.DatabaseURL != "" {
		cfg.DatabaseURL = o.DatabaseURL
	}
	if o.Port != "" {
		cfg.Port = o.Port
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.PrefsBackend != "" {
		cfg.PrefsBackend = strings.ToLower(o.PrefsBackend)
	}

	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if !validBackends[c.PrefsBackend] {
		return fmt.Errorf("unknown prefs_backend %q", c.PrefsBackend)
	}
	if c.PrefsBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("prefs_backend postgres requires database_url")
	}
	if c.PrefsBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("prefs_backend redis requires redis_url")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be at least 1, got %d", c.PageSize)
	}
	if c.MinColumnWidth < 1 {
		return fmt.Errorf("min_column_width must be at least 1, got %d", c.MinColumnWidth)
	}
	if c.SearchDebounce < 0 {
		return fmt.Errorf("search_debounce_ms must not be negative")
	}
	return nil
}

// parseTrustedOrigins parses a comma-separated string into a slice of trimmed, lowercased origins.
func parseTrustedOrigins(originsStr string) []string {
	if originsStr == "" {
		return []string{}
	}

	parts := strings.Split(originsStr, ",")
	origins := make([]string, 0, len(parts))

	for _, part := range parts {
		origin, err := NormalizeOrigin(part)
		if err != nil {
			continue
		}
		origins = append(origins, origin)
	}

	return origins
}

// NormalizeOrigin reduces a trusted origin to a lowercase host[:port]. An
// http or https scheme and a bare trailing slash are tolerated; wildcards,
// paths, queries and fragments are not.
func NormalizeOrigin(raw string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return "", fmt.Errorf("origin cannot be empty")
	}
	for _, scheme := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, scheme)
	}
	host = strings.TrimSuffix(host, "/")

	switch {
	case strings.ContainsAny(host, " \t\r\n"):
		return "", fmt.Errorf("origin cannot contain whitespace")
	case strings.Contains(host, "*"):
		return "", fmt.Errorf("wildcards are not allowed in trusted origins")
	}

	u, err := url.Parse("http://" + host)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q", raw)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("origin must not include path, query, or fragment")
	}
	return u.Host, nil
}

// AllowedOrigins expands trusted hosts into the http and https origins a CORS
// middleware compares against.
func (c *Config) AllowedOrigins() []string {
	out := make([]string, 0, len(c.TrustedOrigins)*2)
	for _, host := range c.TrustedOrigins {
		out = append(out, "http://"+host, "https://"+host)
	}
	return out
}
