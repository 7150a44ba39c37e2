package coredispatch

import (
	"log/slog"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Logger is the structured logging surface the dispatcher writes
// worker lifecycle and task-error events to. The zero value install
// (WithLogger not called) uses a no-op implementation, so the library
// imposes no cost when logging isn't configured.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// logifaceLogger adapts a logiface.Logger backed by the slog bridge to
// the Logger interface, pairing fields positionally (key, value, key,
// value, ...) the way slog.Logger's variadic helpers do.
type logifaceLogger struct {
	l *logiface.Logger[*islog.Event]
}

// NewSlogLogger builds a Logger on top of logiface's slog backend, so
// structured events flow through the standard library's log/slog
// handler chain the caller configured.
func NewSlogLogger(handler slog.Handler) Logger {
	return &logifaceLogger{l: logiface.New[*islog.Event](islog.WithSlogHandler(handler))}
}

func (l *logifaceLogger) Debug(msg string, kv ...any) { l.log(logiface.LevelDebug, msg, kv) }
func (l *logifaceLogger) Info(msg string, kv ...any)  { l.log(logiface.LevelInformational, msg, kv) }
func (l *logifaceLogger) Warn(msg string, kv ...any)  { l.log(logiface.LevelWarning, msg, kv) }

func (l *logifaceLogger) log(level logiface.Level, msg string, kv []any) {
	b := l.l.Build(level)
	if b == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			b = b.Field(key, kv[i+1])
		}
	}
	b.Log(msg)
}
