package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is the verbosity of a logger. Higher values log more.
type LogLevel int32

const (
	CRITICAL LogLevel = iota
	ERROR
	WARNING
	INFO
	DEBUG
)

// String returns the name used in configuration files for the level.
func (l LogLevel) String() string {
	switch l {
	case CRITICAL:
		return "critical"
	case ERROR:
		return "error"
	case WARNING:
		return "warn"
	case INFO:
		return "info"
	case DEBUG:
		return "debug"
	default:
		return "unknown"
	}
}

// ILogger is the interface every package logger implements.
type ILogger interface {
	SetLevel(level LogLevel)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Panicf(format string, args ...interface{})
}

// --------------------------------------------------------------------------
// Named logger
// --------------------------------------------------------------------------

type namedLogger struct {
	name  string
	level atomic.Int32
	sugar atomic.Pointer[zap.SugaredLogger]
}

func (l *namedLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

func (l *namedLogger) enabled(level LogLevel) bool {
	return LogLevel(l.level.Load()) >= level
}

func (l *namedLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(DEBUG) {
		l.sugar.Load().Debugf(format, args...)
	}
}

func (l *namedLogger) Infof(format string, args ...interface{}) {
	if l.enabled(INFO) {
		l.sugar.Load().Infof(format, args...)
	}
}

func (l *namedLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(WARNING) {
		l.sugar.Load().Warnf(format, args...)
	}
}

func (l *namedLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(ERROR) {
		l.sugar.Load().Errorf(format, args...)
	}
}

func (l *namedLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.enabled(CRITICAL) {
		l.sugar.Load().Error(msg)
	}
	panic(msg)
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

var registry = struct {
	mu      sync.Mutex
	level   LogLevel
	base    *zap.Logger
	loggers map[string]*namedLogger
}{
	level:   INFO,
	base:    newBase(os.Stdout),
	loggers: make(map[string]*namedLogger),
}

// newBase builds the shared zap logger. Filtering happens per named logger,
// so the core itself accepts everything.
func newBase(w io.Writer) *zap.Logger {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	config.ConsoleSeparator = " | "
	config.CallerKey = ""
	config.StacktraceKey = ""

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(config),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(zapcore.DebugLevel),
	)
	return zap.New(core)
}

// GetLogger returns the logger registered under pkgName, creating it on first use.
func GetLogger(pkgName string) ILogger {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if l, ok := registry.loggers[pkgName]; ok {
		return l
	}

	l := &namedLogger{name: pkgName}
	l.level.Store(int32(registry.level))
	l.sugar.Store(registry.base.Named(fmt.Sprintf("%-10s", pkgName)).Sugar())
	registry.loggers[pkgName] = l
	return l
}

// SetLevel changes the level of every registered logger and the default for new ones.
func SetLevel(level LogLevel) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.level = level
	for _, l := range registry.loggers {
		l.SetLevel(level)
	}
}

// SetOutput redirects all loggers to w.
func SetOutput(w io.Writer) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	_ = registry.base.Sync()
	registry.base = newBase(w)
	for name, l := range registry.loggers {
		l.sugar.Store(registry.base.Named(fmt.Sprintf("%-10s", name)).Sugar())
	}
}

// Sync flushes buffered log output.
func Sync() error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.base.Sync()
}

// ParseLevel converts a configuration string into a LogLevel.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warning", "warn":
		return WARNING, nil
	case "error":
		return ERROR, nil
	case "critical":
		return CRITICAL, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}
