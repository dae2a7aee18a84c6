// Package apiclient talks to the upstream website-analytics API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/seuros/mfdash/internal/logging"
)

const (
	defaultUserAgent = "mfdash/0.1"
	requestTimeout   = 30 * time.Second

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries = 3

	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second

	maxErrorBody = 1 << 20
)

// ErrUnauthorized is returned (wrapped in *APIError) when the API answers 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
	Method  string
	URL     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.URL, e.Message, e.Status)
}

// Unwrap lets errors.Is match ErrUnauthorized on 401 answers.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// IsUnauthorized reports whether err carries a 401 from the API.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// TokenSource yields the bearer credential for the current caller. An empty
// token means the request goes out without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed credential.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Doer is implemented by *Client and by test fakes.
type Doer interface {
	Do(ctx context.Context, method, path string, payload map[string]any, dest any) error
}

var _ Doer = (*Client)(nil)

// sleep waits between retries; tests replace it.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client issues JSON requests against the API base URL.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	userAgent  string
	tokens     TokenSource
	maxRetries int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenSource sets the bearer credential source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRetries overrides MaxRetries. Zero disables retrying.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// New builds a Client for baseURL, e.g. "https://api.example.com".
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    base,
		http:       &http.Client{Timeout: requestTimeout},
		userAgent:  defaultUserAgent,
		maxRetries: MaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends payload to path and decodes the JSON answer into dest. GET payloads
// become the query string with nil values dropped; other methods send them as
// a JSON body. Transient failures are retried with exponential backoff; 4xx
// answers are returned immediately.
func (c *Client) Do(ctx context.Context, method, path string, payload map[string]any, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	method = strings.ToUpper(method)
	rel := &url.URL{Path: c.baseURL.Path + "/" + strings.TrimLeft(path, "/")}
	var body []byte
	if method == http.MethodGet {
		rel.RawQuery = encodeQuery(payload)
	} else if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		body = encoded
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.once(ctx, method, rel, body, dest)
		if lastErr == nil {
			return nil
		}
		if attempt >= c.maxRetries || !retryable(ctx, lastErr) {
			return lastErr
		}
		wait := Backoff(attempt)
		logging.L().Warn("retrying upstream request",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"wait", wait,
			"error", lastErr,
		)
		if err := sleep(ctx, wait); err != nil {
			return lastErr
		}
	}
}

func (c *Client) once(ctx context.Context, method string, rel *url.URL, body []byte, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		if token = strings.TrimSpace(token); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, raw),
			Method:  method,
			URL:     rel.Path,
		}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Backoff is the wait before retry number attempt (0-based): 1s, 2s, 4s ...
// capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxBackoff
	}
	d := baseBackoff << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// errorMessage picks the most useful text out of an error body: a JSON
// "message", then a JSON "error", then a bare JSON string, then the raw text.
// JSON objects carrying neither field fall back to the status line.
func errorMessage(status int, raw []byte) string {
	fallback := fmt.Sprintf("HTTP %d - %s", status, http.StatusText(status))
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fallback
	}

	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return string(trimmed)
	}
	switch v := decoded.(type) {
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := v["error"].(string); ok && msg != "" {
			return msg
		}
	case string:
		if v != "" {
			return v
		}
	}
	return fallback
}

func encodeQuery(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		v := payload[k]
		if v == nil {
			continue
		}
		values.Set(k, formatValue(v))
	}
	return values.Encode()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		return strings.Join(val, ",")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api base url %q has no host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
