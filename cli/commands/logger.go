package commands

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/AshkanYarmoradi/go-ferret"
)

// slogLogger adapts a *slog.Logger to ferret.Logger.
type slogLogger struct {
	logger *slog.Logger
}

var _ ferret.Logger = (*slogLogger)(nil)

// newLogger returns a text logger writing to w at the named level.
// Unknown levels fall back to warn.
func newLogger(w io.Writer, level string) *slogLogger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &slogLogger{logger: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func (l *slogLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (l *slogLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (l *slogLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (l *slogLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}
