// Package logger provides a process-wide structured logging facade backed
// by log/slog. It exposes package-level functions so call sites never need
// to thread a logger through every constructor, while still allowing tests
// to swap the underlying handler via the singleton.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/go-logr/logr"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	Initialize()
}

// EnvReader abstracts environment-variable lookup so tests can inject a
// fake without touching the real process environment.
type EnvReader interface {
	Getenv(key string) string
}

type osEnvReader struct{}

func (osEnvReader) Getenv(key string) string { return os.Getenv(key) }

// options configure New.
type options struct {
	output io.Writer
	level  slog.Level
}

// Option configures a logger built by New.
type Option func(*options)

// WithOutput sets the destination writer. Defaults to os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithLevel sets the minimum level. Defaults to slog.LevelInfo.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// New builds an slog.Logger writing structured (JSON) records.
func New(opts ...Option) *slog.Logger {
	o := &options{output: os.Stderr, level: slog.LevelInfo}
	for _, fn := range opts {
		fn(o)
	}
	return slog.New(slog.NewJSONHandler(o.output, &slog.HandlerOptions{Level: o.level}))
}

// newText builds an slog.Logger writing human-readable text records.
func newText(opts ...Option) *slog.Logger {
	o := &options{output: os.Stderr, level: slog.LevelInfo}
	for _, fn := range opts {
		fn(o)
	}
	return slog.New(slog.NewTextHandler(o.output, &slog.HandlerOptions{Level: o.level}))
}

// unstructuredLogsWithEnv reports whether UNSTRUCTURED_LOGS selects the
// human-readable text handler. Unset or unparsable values default to true,
// matching local-development ergonomics; an explicit "false" opts into
// structured JSON for production log pipelines.
func unstructuredLogsWithEnv(env EnvReader) bool {
	v := env.Getenv("UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Initialize sets up the singleton logger from the real process
// environment.
func Initialize() {
	InitializeWithEnv(osEnvReader{})
}

// InitializeWithEnv sets up the singleton logger, reading UNSTRUCTURED_LOGS
// through env instead of the process environment.
func InitializeWithEnv(env EnvReader) {
	var l *slog.Logger
	if unstructuredLogsWithEnv(env) {
		l = newText(WithLevel(slog.LevelInfo))
	} else {
		l = New(WithLevel(slog.LevelInfo))
	}
	singleton.Store(l)
}

// Get returns the current singleton logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// NewLogr adapts the singleton logger to logr.Logger for collaborators that
// expect one.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(Get().Handler())
}

// Debug logs msg at debug level.
func Debug(msg string) { Get().Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { Get().Debug(fmt.Sprintf(format, args...)) }

// Debugw logs msg with structured key-value pairs at debug level.
func Debugw(msg string, keysAndValues ...any) { Get().Debug(msg, keysAndValues...) }

// Info logs msg at info level.
func Info(msg string) { Get().Info(msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { Get().Info(fmt.Sprintf(format, args...)) }

// Infow logs msg with structured key-value pairs at info level.
func Infow(msg string, keysAndValues ...any) { Get().Info(msg, keysAndValues...) }

// Warn logs msg at warn level.
func Warn(msg string) { Get().Warn(msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { Get().Warn(fmt.Sprintf(format, args...)) }

// Warnw logs msg with structured key-value pairs at warn level.
func Warnw(msg string, keysAndValues ...any) { Get().Warn(msg, keysAndValues...) }

// Error logs msg at error level.
func Error(msg string) { Get().Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { Get().Error(fmt.Sprintf(format, args...)) }

// Errorw logs msg with structured key-value pairs at error level.
func Errorw(msg string, keysAndValues ...any) { Get().Error(msg, keysAndValues...) }

// DPanic logs msg at error level. Unlike Panic it does not panic; it
// signals an invariant violation that is promoted to a panic only under a
// development build, which this repo does not distinguish.
func DPanic(msg string) { Get().Error(msg) }

// DPanicf logs a formatted message as DPanic.
func DPanicf(format string, args ...any) { Get().Error(fmt.Sprintf(format, args...)) }

// DPanicw logs msg with structured key-value pairs as DPanic.
func DPanicw(msg string, keysAndValues ...any) { Get().Error(msg, keysAndValues...) }

// Panic logs msg at error level then panics with it.
func Panic(msg string) {
	Get().Error(msg)
	panic(msg)
}

// Panicf logs a formatted message at error level then panics with it.
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Get().Error(msg)
	panic(msg)
}

// Panicw logs msg with structured key-value pairs then panics with msg.
func Panicw(msg string, keysAndValues ...any) {
	Get().Error(msg, keysAndValues...)
	panic(msg)
}
