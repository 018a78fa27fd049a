// Package logging provides the zap-backed implementation of ports.Logger.
//
// Entries are JSON by default with timestamp, level and message keys;
// fields passed to a call are attached under "fields", fields bound with
// With are attached at the top level.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/longregen/reprompt/internal/ports"
)

// Format selects the encoder.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Logger implements ports.Logger on top of zap.Logger.
type Logger struct {
	zap *zap.Logger
}

// Options configures a Logger.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
}

// New creates a logger. An empty level means info; output defaults to os.Stderr.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{zap: zap.New(newCore(opts.Format, out, level))}, nil
}

// NewJSON creates a debug-level JSON logger writing to w.
func NewJSON(w io.Writer) *Logger {
	return &Logger{zap: zap.New(newCore(FormatJSON, w, zapcore.DebugLevel))}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func newCore(format Format, w io.Writer, level zapcore.Level) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	if format == FormatConsole {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	return zapcore.NewCore(encoder, zapcore.AddSync(w), level)
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, toFields(fields)...)
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, toFields(fields)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, toFields(fields)...)
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, toFields(fields)...)
}

// With returns a child logger carrying fields on every entry.
func (l *Logger) With(fields map[string]any) ports.Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &Logger{zap: l.zap.With(zf...)}
}

// Timer starts a timer that logs "<name> completed" with duration_ms on Stop.
func (l *Logger) Timer(name string) ports.Timer {
	return &timer{logger: l, name: name, start: time.Now()}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Zap exposes the underlying zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Sugar returns a printf-style logger for CLI surfaces.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.zap.Sugar()
}

func toFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	return []zap.Field{zap.Any("fields", fields)}
}

type timer struct {
	logger *Logger
	name   string
	start  time.Time
}

func (t *timer) Stop(fields map[string]any) time.Duration {
	elapsed := time.Since(t.start)
	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["duration_ms"] = elapsed.Milliseconds()
	t.logger.Info(t.name+" completed", merged)
	return elapsed
}
