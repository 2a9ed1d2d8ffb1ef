package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level controls which messages a Logger emits.
type Level int

const (
	// DEBUG emits everything, including per-fragment stream tracing.
	DEBUG Level = iota
	// INFO is the default operational level.
	INFO
	// WARN flags recoverable anomalies such as mid-stream disconnects.
	WARN
	// ERROR flags failed requests.
	ERROR
	// FATAL logs and terminates the process.
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Logger is a leveled logger scoped to a named component.
type Logger struct {
	mu        sync.Mutex
	level     Level
	out       *log.Logger
	component string
	exit      func(int)
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init sets up the process-wide default logger. Subsequent calls are no-ops.
func Init(level Level, component string) {
	once.Do(func() {
		defaultLogger = New(os.Stdout, level, component)
	})
}

// Default returns the process-wide logger, initializing it at INFO if Init
// was never called.
func Default() *Logger {
	if defaultLogger == nil {
		Init(INFO, "gateway")
	}
	return defaultLogger
}

// New creates a logger writing to w. Tests pass a bytes.Buffer here.
func New(w io.Writer, level Level, component string) *Logger {
	return &Logger{
		level:     level,
		out:       log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		component: component,
		exit:      os.Exit,
	}
}

// WithComponent returns a child logger sharing output and level but tagged
// with a different component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		level:     l.level,
		out:       l.out,
		component: component,
		exit:      l.exit,
	}
}

// SetLevel changes the minimum emitted level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	if level < l.level {
		l.mu.Unlock()
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("[%s][%s] %s", levelNames[level], l.component, msg)
	l.mu.Unlock()

	if level == FATAL {
		l.exit(1)
	}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// Fatal logs at FATAL level and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
}
