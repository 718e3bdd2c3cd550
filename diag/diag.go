// Package diag provides the leveled diagnostics sink shared by the schema
// compiler, the query drivers and the client.
//
// Verbosity follows a small integer scale:
//
//	0  silent (errors are still returned, but never written)
//	1  errors
//	2  warnings (default)
//	3  info
//	4  trace (every statement sent to the backend)
//
// Error-level events are fatal: Logger.Fail writes the error and returns it
// unchanged for the caller to propagate.
package diag

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// Verbosity levels.
const (
	LevelSilent = 0
	LevelError  = 1
	LevelWarn   = 2
	LevelInfo   = 3
	LevelTrace  = 4
)

// SlogTrace is the slog level used for trace events.
const SlogTrace = slog.LevelDebug - 4

// DebugEnv forces trace verbosity when set to a non-empty value.
const DebugEnv = "FKORM_DEBUG"

// Logger is a leveled logger writing through a *slog.Logger.
// The zero value is not usable; use New or Discard.
type Logger struct {
	level atomic.Int32
	out   *slog.Logger
}

// New returns a Logger writing to out at the given verbosity.
// A nil out writes text records to stderr.
func New(out *slog.Logger, level int) *Logger {
	if out == nil {
		out = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: SlogTrace}))
	}
	l := &Logger{out: out}
	if os.Getenv(DebugEnv) != "" {
		level = LevelTrace
	}
	l.level.Store(int32(level))
	return l
}

// Discard returns a Logger that never writes.
func Discard() *Logger {
	l := &Logger{out: slog.New(slog.DiscardHandler)}
	l.level.Store(LevelSilent)
	return l
}

// Level returns the current verbosity.
func (l *Logger) Level() int { return int(l.level.Load()) }

// SetLevel changes the verbosity.
func (l *Logger) SetLevel(level int) { l.level.Store(int32(level)) }

// Enabled reports whether events of the given verbosity are written.
func (l *Logger) Enabled(level int) bool { return l.Level() >= level }

// Fail writes err at error level and returns it unchanged.
func (l *Logger) Fail(err error) error {
	if err != nil && l.Enabled(LevelError) {
		l.out.Log(context.Background(), slog.LevelError, err.Error())
	}
	return err
}

// Warn writes msg at warning level and returns msg.
func (l *Logger) Warn(msg string, args ...any) string {
	if l.Enabled(LevelWarn) {
		l.out.Log(context.Background(), slog.LevelWarn, msg, args...)
	}
	return msg
}

// Info writes msg at info level.
func (l *Logger) Info(msg string, args ...any) {
	if l.Enabled(LevelInfo) {
		l.out.Log(context.Background(), slog.LevelInfo, msg, args...)
	}
}

// Trace writes msg at trace level.
func (l *Logger) Trace(ctx context.Context, msg string, args ...any) {
	if l.Enabled(LevelTrace) {
		l.out.Log(ctx, SlogTrace, msg, args...)
	}
}
