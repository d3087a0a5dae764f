package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	handler slog.Handler
	level   *slog.LevelVar
}

func New() *Logger {
	level := new(slog.LevelVar)
	return &Logger{
		handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		level:   level,
	}
}

// SetLevel accepts debug, info, warn or error. Unknown values keep the
// current level and return an error.
func (l *Logger) SetLevel(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		l.level.Set(slog.LevelDebug)
	case "info", "":
		l.level.Set(slog.LevelInfo)
	case "warn", "warning":
		l.level.Set(slog.LevelWarn)
	case "error":
		l.level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}

func (l *Logger) Enabled(level slog.Level) bool {
	return l.handler.Enabled(context.Background(), level)
}

func (l *Logger) logf(level slog.Level, format string, v ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	slog.New(l.handler).Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.logf(slog.LevelInfo, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.logf(slog.LevelWarn, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.logf(slog.LevelError, format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.logf(slog.LevelDebug, format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.logf(slog.LevelError, format, v...)
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func SetLevel(name string) error {
	return GlobalLogger.SetLevel(name)
}

func Info(format string, v ...interface{}) {
	GlobalLogger.Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}
