// Package log provides structured logging with session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for core paths (structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces (convenience over performance)
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/screener/types"
)

// Logger provides structured logging with session context.
// All log entries include the session identity fields.
//
// A nil *Logger discards everything, so components may hold an
// optional logger without guarding each call.
type Logger struct {
	zap    *zap.Logger
	level  zapcore.Level
	fields []zap.Field
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
// Wraps zap.SugaredLogger with session context.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// New creates a logger writing JSON lines to w at the given minimum level.
func New(meta *types.SessionMeta, w io.Writer, level zapcore.Level) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)

	var contextFields []zap.Field
	if meta != nil {
		contextFields = append(contextFields, zap.String("session_id", meta.SessionID))
		if meta.ServiceURL != "" {
			contextFields = append(contextFields, zap.String("service_url", meta.ServiceURL))
		}
		if meta.Interactive {
			contextFields = append(contextFields, zap.Bool("interactive", true))
		}
	}

	return &Logger{zap: zap.New(core).With(contextFields...), level: level, fields: contextFields}
}

// NewNop returns a logger that discards all output.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zapcore.FatalLevel}
}

// ParseLevel maps a config level name (debug, info, warn, error) to a zap level.
// An empty name is info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (must be debug, info, warn, or error)", name)
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// WithOutput returns a new logger with a different output writer.
// Level and context fields are preserved.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if l == nil {
		return nil
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		l.level,
	)
	return &Logger{zap: zap.New(core).With(l.fields...), level: l.level, fields: l.fields}
}

// Named returns a logger tagging entries with a component name.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return nil
	}
	field := zap.String("component", component)
	fields := append(append([]zap.Field(nil), l.fields...), field)
	return &Logger{zap: l.zap.With(field), level: l.level, fields: fields}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
// Use for CLI/debug surfaces where convenience matters more than performance.
func (l *Logger) Sugar() *SugaredLogger {
	if l == nil {
		return &SugaredLogger{sugar: zap.NewNop().Sugar()}
	}
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
