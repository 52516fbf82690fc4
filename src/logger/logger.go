package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m", // Cyan
	INFO:  "\033[32m", // Green
	WARN:  "\033[33m", // Yellow
	ERROR: "\033[31m", // Red
}

// ParseLevel maps a level name to a Level. Unknown names map to INFO.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger is a leveled logger with optional ANSI colors and a component prefix.
type Logger struct {
	mu     sync.RWMutex
	level  Level
	colors bool
	prefix string
	out    *log.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init configures the default logger from the environment.
//
//	LOG_LEVEL: DEBUG, INFO, WARN, ERROR (default INFO)
//	LOG_COLOR: set to "false" or "0" to disable colored output
func Init() {
	once.Do(func() {
		colors := true
		if v := os.Getenv("LOG_COLOR"); v == "false" || v == "0" {
			colors = false
		}
		defaultLogger = New(ParseLevel(os.Getenv("LOG_LEVEL")), os.Stdout, colors, "")
	})
}

// New creates a Logger writing to output at the given level.
func New(level Level, output io.Writer, colors bool, prefix string) *Logger {
	return &Logger{
		level:  level,
		colors: colors,
		prefix: prefix,
		out:    log.New(output, "", log.LstdFlags),
	}
}

// SetLevel changes the minimum level that gets logged.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Enabled reports whether messages at level would be logged.
func (l *Logger) Enabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	name := levelNames[level]

	var line string
	switch {
	case l.colors && l.prefix != "":
		line = fmt.Sprintf("%s[%s]\033[0m [%s] %s", levelColors[level], name, l.prefix, msg)
	case l.colors:
		line = fmt.Sprintf("%s[%s]\033[0m %s", levelColors[level], name, msg)
	case l.prefix != "":
		line = fmt.Sprintf("[%s] [%s] %s", name, l.prefix, msg)
	default:
		line = fmt.Sprintf("[%s] %s", name, msg)
	}

	l.out.Output(3, line)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// WithPrefix returns a logger that tags every line with a component prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		level:  l.level,
		colors: l.colors,
		prefix: prefix,
		out:    l.out,
	}
}

// Default returns the process-wide logger, initializing it if needed.
func Default() *Logger {
	if defaultLogger == nil {
		Init()
	}
	return defaultLogger
}

// Package-level helpers using the default logger.

func Debug(format string, args ...interface{}) { Default().log(DEBUG, format, args...) }
func Info(format string, args ...interface{})  { Default().log(INFO, format, args...) }
func Warn(format string, args ...interface{})  { Default().log(WARN, format, args...) }
func Error(format string, args ...interface{}) { Default().log(ERROR, format, args...) }

// WithPrefix returns a component-prefixed logger from the default logger.
func WithPrefix(prefix string) *Logger {
	return Default().WithPrefix(prefix)
}
