package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu       sync.RWMutex
	levelVar = new(slog.LevelVar)
	base     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
)

// ParseLevel maps a config string to a LogLevel. Unknown values fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func SetLevel(level LogLevel) {
	levelVar.Set(toSlog(level))
}

// Configure replaces the output handler. format is "json" or "text".
func Configure(w io.Writer, format string, level LogLevel) {
	SetLevel(level)
	opts := &slog.HandlerOptions{Level: levelVar}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	base = slog.New(h)
	mu.Unlock()
}

func toSlog(level LogLevel) slog.Level {
	switch level {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logf(level slog.Level, component, message string, fields map[string]any) {
	mu.RLock()
	l := base
	mu.RUnlock()

	attrs := make([]any, 0, 2+len(fields)*2)
	if component != "" {
		attrs = append(attrs, slog.String("component", component))
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.Log(context.Background(), level, message, attrs...)
}

func DebugC(component, message string) { logf(slog.LevelDebug, component, message, nil) }
func InfoC(component, message string)  { logf(slog.LevelInfo, component, message, nil) }
func WarnC(component, message string)  { logf(slog.LevelWarn, component, message, nil) }
func ErrorC(component, message string) { logf(slog.LevelError, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logf(slog.LevelDebug, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logf(slog.LevelInfo, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logf(slog.LevelWarn, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logf(slog.LevelError, component, message, fields)
}
