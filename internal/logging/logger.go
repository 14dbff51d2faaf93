package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/skilltree/internal/config"
)

// Logger appends leveled lines to .skilltree/logs/skilltree.log. Components
// only see its Printf method; Debugf and friends are picked up when present.
type Logger struct {
	z *zap.Logger
	s *zap.SugaredLogger
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir, level string) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.ProjectDirName, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "skilltree.log")

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.Sampling = nil
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return Wrap(z), nil
}

// Wrap adapts an existing zap logger.
func Wrap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z, s: z.Sugar()}
}

// Nop discards everything.
func Nop() *Logger {
	return Wrap(zap.NewNop())
}

// ParseLevel maps debug|info|warn|error to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap exposes the underlying logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.z
}

// Close flushes buffered entries.
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	return nil
}

// Printf writes an info line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.s.Infof(strings.TrimRight(format, "\n"), args...)
}

// Debugf writes a debug line.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.s.Debugf(format, args...)
}

// Warnf writes a warning line.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.s.Warnf(format, args...)
}

// Errorf writes an error line.
func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.s.Errorf(format, args...)
}
