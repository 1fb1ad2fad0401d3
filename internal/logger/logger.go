// Package logger provides structured logging for cairn, backed by zap.
// The package-level functions are safe before Init: they log through a
// no-op logger until Init installs a real one, so library-style use and
// tests need no setup.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Config controls logger initialisation.
type Config struct {
	// Level is the minimum level to emit: debug, info, warn or error.
	Level string

	// Format is "json" or "console".
	Format string

	// OutputPath is the log destination. Defaults to stderr.
	OutputPath string
}

// Init installs the global logger. Calling it again replaces the
// previous logger.
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	zapConfig := zap.Config{
		Level:         zap.NewAtomicLevelAt(level),
		Encoding:      cfg.Format,
		EncoderConfig: encoderConfig,
		OutputPaths:   []string{cfg.OutputPath},
	}
	if zapConfig.Encoding == "" {
		zapConfig.Encoding = "console"
	}
	if cfg.OutputPath == "" {
		zapConfig.OutputPaths = []string{"stderr"}
	}
	zapConfig.ErrorOutputPaths = zapConfig.OutputPaths

	built, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	log = built
	mu.Unlock()
	return nil
}

// L returns the current global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs a message at debug level.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs a message at info level.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn logs a message at warn level.
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs a message at error level.
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() error {
	return L().Sync()
}
