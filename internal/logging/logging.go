// Package logging provides the process-wide structured loggers. Application code
// logs through slog via L(); the HTTP access log runs on zap via Access().
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	initOnce sync.Once
	logger   *slog.Logger

	accessOnce sync.Once
	access     *zap.Logger

	exitFunc = os.Exit
)

// L returns the shared application logger, initializing it on first use.
func L() *slog.Logger {
	initOnce.Do(func() {
		logger = slog.New(newHandler())
	})
	return logger
}

func newHandler() slog.Handler {
	level := parseLevel(os.Getenv("MFDASH_LOG_LEVEL"))
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: strings.EqualFold(os.Getenv("MFDASH_LOG_SOURCE"), "true"),
	}

	if jsonFormat() {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	// Text goes to stderr so stdout stays usable for CSV exports.
	return slog.NewTextHandler(os.Stderr, opts)
}

// Access returns the zap logger used for HTTP access logs. It honors the same
// level and format variables as L.
func Access() *zap.Logger {
	accessOnce.Do(func() {
		access = newZap()
	})
	return access
}

func newZap() *zap.Logger {
	var cfg zap.Config
	if jsonFormat() {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(parseLevel(os.Getenv("MFDASH_LOG_LEVEL"))))

	built, err := cfg.Build()
	if err != nil {
		L().Warn("falling back to no-op access logger", "error", err)
		return zap.NewNop()
	}
	return built
}

func jsonFormat() bool {
	switch strings.ToLower(os.Getenv("MFDASH_LOG_FORMAT")) {
	case "json", "structured":
		return true
	}
	return false
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// With returns a child logger with additional attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Fatal logs the message at error level and exits with status 1.
func Fatal(msg string, args ...any) {
	L().Error(msg, args...)
	exitFunc(1)
}
