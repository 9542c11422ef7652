package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin zerolog wrapper with typed fields.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"` // stdout, stderr, or file path
	TimeFormat string `yaml:"time_format"`
	// Caller adds file:line to every event.
	Caller bool `yaml:"caller" default:"true"`
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.CallerWithSkipFrameCount(3)
	}
	return &Logger{zl: ctx.Logger()}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", target, err)
	}
	return f, nil
}

// NewWriter logs to w, mostly for tests that inspect the output.
func NewWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that stamps every event with component=name.
func (l *Logger) With(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { write(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { write(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { write(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { write(l.zl.Error(), msg, fields) }

func write(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		f(e)
	}
	e.Msg(msg)
}

// Field decorates a log event.
type Field func(*zerolog.Event)

func String(key, v string) Field           { return func(e *zerolog.Event) { e.Str(key, v) } }
func Strings(key string, v []string) Field { return func(e *zerolog.Event) { e.Strs(key, v) } }
func Int(key string, v int) Field          { return func(e *zerolog.Event) { e.Int(key, v) } }
func Int64(key string, v int64) Field      { return func(e *zerolog.Event) { e.Int64(key, v) } }
func Float64(key string, v float64) Field {
	return func(e *zerolog.Event) { e.Float64(key, v) }
}
func Bool(key string, v bool) Field       { return func(e *zerolog.Event) { e.Bool(key, v) } }
func Any(key string, v interface{}) Field { return func(e *zerolog.Event) { e.Interface(key, v) } }
func Error(err error) Field               { return func(e *zerolog.Event) { e.Err(err) } }

// Duration is logged in milliseconds.
func Duration(key string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Float64(key, float64(v.Microseconds())/1000) }
}
