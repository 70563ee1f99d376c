package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a thin structured-logging facade over zerolog.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string

	// Rotation settings, used only when Output is a file path.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &Logger{zl: zl}, nil
}

// NewWriter builds a logger that writes JSON lines to w. Used by tests and the CLI.
func NewWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that always carries the given fields.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.addToContext(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { l.emit(l.zl.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) { l.emit(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), msg, fields) }

func (l *Logger) emit(event *zerolog.Event, msg string, fields []Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		f.AddTo(event)
	}
	event.Msg(msg)
}

// Field is a typed key/value attached to a log event.
type Field interface {
	AddTo(event *zerolog.Event)
	addToContext(ctx zerolog.Context) zerolog.Context
}

type stringField struct {
	key, value string
}

func (f stringField) AddTo(e *zerolog.Event) { e.Str(f.key, f.value) }
func (f stringField) addToContext(c zerolog.Context) zerolog.Context {
	return c.Str(f.key, f.value)
}

type intField struct {
	key   string
	value int64
}

func (f intField) AddTo(e *zerolog.Event) { e.Int64(f.key, f.value) }
func (f intField) addToContext(c zerolog.Context) zerolog.Context {
	return c.Int64(f.key, f.value)
}

type floatField struct {
	key   string
	value float64
}

func (f floatField) AddTo(e *zerolog.Event) { e.Float64(f.key, f.value) }
func (f floatField) addToContext(c zerolog.Context) zerolog.Context {
	return c.Float64(f.key, f.value)
}

type boolField struct {
	key   string
	value bool
}

func (f boolField) AddTo(e *zerolog.Event) { e.Bool(f.key, f.value) }
func (f boolField) addToContext(c zerolog.Context) zerolog.Context {
	return c.Bool(f.key, f.value)
}

type timeField struct {
	key   string
	value time.Time
}

func (f timeField) AddTo(e *zerolog.Event) { e.Time(f.key, f.value) }
func (f timeField) addToContext(c zerolog.Context) zerolog.Context {
	return c.Time(f.key, f.value)
}

type errorField struct {
	err error
}

func (f errorField) AddTo(e *zerolog.Event) { e.Err(f.err) }
func (f errorField) addToContext(c zerolog.Context) zerolog.Context {
	return c.Err(f.err)
}

type anyField struct {
	key   string
	value any
}

func (f anyField) AddTo(e *zerolog.Event) { e.Interface(f.key, f.value) }
func (f anyField) addToContext(c zerolog.Context) zerolog.Context {
	return c.Interface(f.key, f.value)
}

// --- Field constructors ---

func String(key, value string) Field { return stringField{key: key, value: value} }

func Int(key string, value int) Field { return intField{key: key, value: int64(value)} }

func Int64(key string, value int64) Field { return intField{key: key, value: value} }

func Uint64(key string, value uint64) Field { return intField{key: key, value: int64(value)} }

func Float64(key string, value float64) Field { return floatField{key: key, value: value} }

func Bool(key string, value bool) Field { return boolField{key: key, value: value} }

func Time(key string, value time.Time) Field { return timeField{key: key, value: value} }

func Error(err error) Field { return errorField{err: err} }

func Any(key string, value any) Field { return anyField{key: key, value: value} }

// Duration logs the value in milliseconds.
func Duration(key string, value time.Duration) Field {
	return intField{key: key, value: value.Milliseconds()}
}

func Strings(key string, value []string) Field {
	return String(key, strings.Join(value, ", "))
}
