package utils

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	logger     *slog.Logger
	logLevel   = new(slog.LevelVar)
	loggerOnce sync.Once
)

// InitLogger configures the process-wide logger. Records go to stderr as text
// and, when the log directory is writable, to ~/.doclens/logs/doclens.log as JSON.
func InitLogger() {
	loggerOnce.Do(func() {
		logger = newLogger()
		slog.SetDefault(logger)
	})
}

// GetLogger returns the process-wide logger, initializing it on first use.
func GetLogger() *slog.Logger {
	InitLogger()
	return logger
}

// SetLogLevel changes the level of the process-wide logger.
// Unknown names leave the level unchanged.
func SetLogLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	}
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	console := slog.NewTextHandler(os.Stderr, opts)

	file := openLogFile()
	if file == nil {
		return slog.New(console)
	}
	return slog.New(&fanoutHandler{handlers: []slog.Handler{console, slog.NewJSONHandler(file, opts)}})
}

func openLogFile() io.Writer {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".doclens", "logs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "doclens.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil
	}
	return f
}

// MaskSensitiveString keeps the first and last four characters of a secret.
func MaskSensitiveString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
