// Package prefs persists small user preferences (saved filter selections,
// table layouts, the upstream API token) behind a key-value interface.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Store is a string key-value store. Get reports found=false for missing keys
// rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// TokenKey holds the bearer token forwarded to the analytics API.
const TokenKey = "auth.id_token"

const maxKeyLen = 200

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// ErrInvalidKey is returned for empty, oversized or oddly shaped keys.
var ErrInvalidKey = errors.New("invalid preference key")

// ValidateKey checks that key is usable by every backend.
func ValidateKey(key string) error {
	if len(key) == 0 || len(key) > maxKeyLen || !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// FilterKey is where a widget's submitted filter selection is saved.
func FilterKey(widget string) string {
	return "filters." + escapeSegment(widget)
}

// TableKey is where a report table's layout is saved.
func TableKey(report string) string {
	return "tables." + escapeSegment(report)
}

// escapeSegment keeps letters, digits and '-' and writes every other byte as
// "_XX" (upper-case hex), so distinct names never share a key.
func escapeSegment(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02X", c)
		}
	}
	return b.String()
}

// GetJSON decodes the value at key into dest.
func GetJSON(ctx context.Context, s Store, key string, dest any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return true, fmt.Errorf("decode preference %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode preference %q: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// Notifier is told about every successful write.
type Notifier func(ctx context.Context, key, value string)

type notifying struct {
	Store
	notify Notifier
}

// WithNotifier wraps s so that every successful Set calls n. Writes to
// TokenKey are never announced.
func WithNotifier(s Store, n Notifier) Store {
	if n == nil {
		return s
	}
	return &notifying{Store: s, notify: n}
}

func (n *notifying) Set(ctx context.Context, key, value string) error {
	if err := n.Store.Set(ctx, key, value); err != nil {
		return err
	}
	if key != TokenKey {
		n.notify(ctx, key, value)
	}
	return nil
}

// TokenSource reads the API bearer token from a store on every request, so a
// token written through the API or CLI takes effect without a restart.
type TokenSource struct {
	Store    Store
	Key      string
	Fallback string
}

func (t TokenSource) Token(ctx context.Context) (string, error) {
	key := t.Key
	if key == "" {
		key = TokenKey
	}
	if t.Store != nil {
		v, ok, err := t.Store.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		if ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return t.Fallback, nil
}
