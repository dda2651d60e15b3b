// Package logging wraps log/slog with a component attribute so that engine,
// dispatcher, HAL and client messages can be filtered.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

const (
	ComponentEngine   Component = "engine"
	ComponentDispatch Component = "dispatch"
	ComponentHAL      Component = "hal"
	ComponentClient   Component = "client"
	ComponentServer   Component = "server"
)

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
	mu            sync.RWMutex
)

func init() {
	level.Set(slog.LevelWarn)
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLevel sets the minimum level for all logging.
func SetLevel(l slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return level.Level()
}

// ParseLevel accepts debug, info, warn or error (case insensitive).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// SetLogger replaces the default logger.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// Logger returns the current default logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetFormat switches the default logger between text and JSON on w.
func SetFormat(w io.Writer, f Format) {
	opts := &slog.HandlerOptions{Level: level}
	var l *slog.Logger
	switch f {
	case FormatJSON:
		l = slog.New(slog.NewJSONHandler(w, opts))
	default:
		l = slog.New(slog.NewTextHandler(w, opts))
	}
	SetLogger(l)
}

// New creates a text logger writing to w. A nil opts uses the shared level.
func New(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: level}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func Debug(c Component, msg string, args ...any) {
	Logger().Debug(msg, append([]any{"component", string(c)}, args...)...)
}

func Info(c Component, msg string, args ...any) {
	Logger().Info(msg, append([]any{"component", string(c)}, args...)...)
}

func Warn(c Component, msg string, args ...any) {
	Logger().Warn(msg, append([]any{"component", string(c)}, args...)...)
}

func Error(c Component, msg string, args ...any) {
	Logger().Error(msg, append([]any{"component", string(c)}, args...)...)
}
