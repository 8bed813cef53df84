package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base        *zap.Logger
	sugar       *zap.SugaredLogger
	initOnce    sync.Once
)

// init builds the process logger. The level comes from DEBUG or LOG_LEVEL.
func initLogger() {
	initOnce.Do(func() {
		atomicLevel.SetLevel(levelFromEnv().zapLevel())

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		var encoder zapcore.Encoder
		if term.IsTerminal(int(os.Stderr.Fd())) {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			encoder = zapcore.NewConsoleEncoder(encCfg)
		} else {
			encoder = zapcore.NewJSONEncoder(encCfg)
		}

		core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomicLevel)
		base = zap.New(core)
		sugar = base.Sugar()
	})
}

func levelFromEnv() LogLevel {
	if debug := os.Getenv("DEBUG"); debug != "" {
		switch strings.ToLower(debug) {
		case "1", "true", "yes", "on":
			return LevelDebug
		}
	}
	level, ok := ParseLevel(os.Getenv("LOG_LEVEL"))
	if !ok {
		return LevelInfo
	}
	return level
}

// ParseLevel converts a level name to a LogLevel. Unknown names report false.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLevel overrides the level picked up from the environment.
func SetLevel(level LogLevel) {
	initLogger()
	atomicLevel.SetLevel(level.zapLevel())
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLogger()
	switch atomicLevel.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Named returns a structured logger for a component.
func Named(name string) *zap.Logger {
	initLogger()
	return base.Named(name)
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	initLogger()
	sugar.Debugf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	initLogger()
	sugar.Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	initLogger()
	sugar.Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	initLogger()
	sugar.Errorf(format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	initLogger()
	sugar.Fatalf(format, args...)
}

// Sync flushes buffered log entries.
func Sync() {
	initLogger()
	_ = base.Sync()
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
