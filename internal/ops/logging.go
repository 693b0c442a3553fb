// Package ops carries the remote helper's ambient operational stack:
// structured logging and progress reporting. Nothing here writes to
// stdout, since stdout is the remote-helper wire protocol (§6).
package ops

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nostrgit/ngit/internal/config"
)

// Logger wraps log/slog the way the teacher's internal/ops.Logger does:
// level from config, RFC3339 timestamps, a text|json format switch. Output
// always targets stderr here, never stdout.
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

func levelFor(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to stderr, per cfg.
func NewLogger(cfg *config.Logging) *Logger {
	return NewLoggerWithWriter(cfg, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to w, used by tests to
// capture output.
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	level := levelFor(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler), level: level, format: cfg.Format}
}

// WithComponent adds a component field to all log messages, the same
// sub-logger pattern the teacher uses per package (C3, C5, C6, ...).
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component), level: l.level, format: l.format}
}

// IsDebugEnabled reports whether debug logging is enabled.
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// LogRelayConnection logs a relay connection outcome (§4.2).
func (l *Logger) LogRelayConnection(relay string, connected bool, err error) {
	if err != nil {
		l.Warn("relay connection failed", "relay", relay, "error", err)
		return
	}
	if connected {
		l.Info("relay connected", "relay", relay)
	} else {
		l.Info("relay disconnected", "relay", relay)
	}
}

// LogFetchReport logs the human summary of a completed fetch round (§4.3,
// §9's join_with_and-style summary).
func (l *Logger) LogFetchReport(summary string, duration time.Duration) {
	l.Info("fetch complete", "summary", summary, "duration_ms", duration.Milliseconds())
}

// LogCacheOperation logs a cache save/query operation (§4.1).
func (l *Logger) LogCacheOperation(op string, scope string, isNew bool) {
	l.Debug("cache operation", "operation", op, "scope", scope, "new", isNew)
}

// TransferDirection is the direction of an object transfer progress event
// forwarded from the VCS adapter (§4.8).
type TransferDirection string

const (
	TransferFetch TransferDirection = "fetch"
	TransferPush  TransferDirection = "push"
)

// TransferStatus is the status of an object transfer progress event.
type TransferStatus string

const (
	TransferInProgress TransferStatus = "in-progress"
	TransferComplete   TransferStatus = "complete"
)

// LogTransferProgress forwards one {direction, status} progress callback
// from the VCS adapter to stderr, matching the original's
// report_on_transfer_progress/report_on_sideband_progress behavior (§9).
func (l *Logger) LogTransferProgress(direction TransferDirection, status TransferStatus, message string) {
	l.Debug("object transfer", "direction", direction, "status", status, "message", message)
}

// Default logger, usable before a config has been loaded (e.g. to report a
// config-load failure itself).
var defaultLogger = NewLoggerWithWriter(&config.Logging{Level: "info", Format: "text"}, os.Stderr)

// Default returns the default logger.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the default logger.
func SetDefault(l *Logger) { defaultLogger = l }
