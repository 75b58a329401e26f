// Package logger provides component-scoped structured logging.
//
// Call sites name the component they log for and pass extra fields as a map:
//
//	logger.InfoCF("store", "Mirror loaded", map[string]any{"profiles": n})
package logger

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newDefault()
)

func newDefault() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetLevel changes the minimum level for every component.
func SetLevel(l LogLevel) {
	level.SetLevel(toZap(l))
}

// ParseLevel maps a config string to a level, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetLogger replaces the backing zap logger. Tests use zap.NewNop or an
// observer core.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func toZap(l LogLevel) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func log(l LogLevel, component, msg string, fields map[string]any) {
	mu.RLock()
	z := base
	mu.RUnlock()

	zf := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		zf = append(zf, zap.String("component", component))
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}

	switch l {
	case DEBUG:
		z.Debug(msg, zf...)
	case WARN:
		z.Warn(msg, zf...)
	case ERROR:
		z.Error(msg, zf...)
	default:
		z.Info(msg, zf...)
	}
}

func Debug(msg string) { log(DEBUG, "", msg, nil) }
func Info(msg string) { log(INFO, "", msg, nil) }
func Warn(msg string) { log(WARN, "", msg, nil) }
func Error(msg string) { log(ERROR, "", msg, nil) }
func DebugC(component, msg string) { log(DEBUG, component, msg, nil) }
func InfoC(component, msg string) { log(INFO, component, msg, nil) }
func WarnC(component, msg string) { log(WARN, component, msg, nil) }
func ErrorC(component, msg string) { log(ERROR, component, msg, nil) }
func DebugCF(component, msg string, fields map[string]any) { log(DEBUG, component, msg, fields) }
func InfoCF(component, msg string, fields map[string]any) { log(INFO, component, msg, fields) }
func WarnCF(component, msg string, fields map[string]any) { log(WARN, component, msg, fields) }
func ErrorCF(component, msg string, fields map[string]any) { log(ERROR, component, msg, fields) }
