// Package log provides the contextual logger used throughout telescan.
//
// It mirrors the shape of go-ethereum's log package: a small Logger
// interface, a process-wide root logger that is safe to call before any
// explicit setup, and New(ctx ...any) to attach key-value pairs that are
// carried on every subsequent call. The backend is log/slog; no
// third-party logging library replaces it because the teacher's own
// logging facade, not an outside dependency, is what idiomatic code here
// reaches for (see DESIGN.md).
package log

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// Logger is the logging surface every component depends on.
type Logger interface {
	New(ctx ...any) Logger

	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)

	Handler() slog.Handler
}

type logger struct {
	inner *slog.Logger
}

// New constructs a Logger that prepends ctx key-value pairs to every
// subsequent log call.
func New(ctx ...any) Logger {
	return root.New(ctx...)
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) Debug(msg string, ctx ...any) { l.inner.Debug(msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.inner.Info(msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.inner.Warn(msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.inner.Error(msg, ctx...) }
func (l *logger) Crit(msg string, ctx ...any) {
	l.inner.Log(context.Background(), levelCrit, msg, ctx...)
}

func (l *logger) Handler() slog.Handler { return l.inner.Handler() }

// levelCrit is one step above slog.LevelError; there is no standard
// "fatal" level so this logs at a higher numeric level instead of
// terminating the process — callers decide whether to exit.
const levelCrit = slog.LevelError + 4

var (
	rootMu sync.Mutex
	root   Logger = &logger{inner: slog.New(newDefaultHandler())}
)

func newDefaultHandler() slog.Handler {
	return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
}

// Root returns the process-wide root logger.
func Root() Logger {
	rootMu.Lock()
	defer rootMu.Unlock()
	return root
}

// SetDefault replaces the root logger. It is idempotent and safe to call
// from concurrent goroutines, typically once during startup.
func SetDefault(l Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// NewHandlerLogger builds a Logger directly from an slog.Handler, letting
// callers plug in JSON output, level filters, or a multi-writer handler.
func NewHandlerLogger(h slog.Handler) Logger {
	return &logger{inner: slog.New(h)}
}

func Debug(msg string, ctx ...any) { Root().Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { Root().Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root().Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { Root().Error(msg, ctx...) }
func Crit(msg string, ctx ...any)  { Root().Crit(msg, ctx...) }
