// Package events carries the two cross-cutting channels of the sync
// core: structured logging and sync lifecycle events.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides structured leveled logging in text or JSON format.
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	format string // "text" or "json"
	output io.Writer
	fields map[string]interface{}
}

// NewLogger creates a logger writing to output.
func NewLogger(level, format string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		level:  ParseLevel(level),
		format: format,
		output: output,
		fields: make(map[string]interface{}),
	}
}

// NewTestLogger creates a debug logger for tests.
func NewTestLogger(output io.Writer) *Logger {
	return NewLogger("debug", "text", output)
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &Logger{
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: merged,
	}
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) { l.log(DebugLevel, msg) }

// Info logs at info level.
func (l *Logger) Info(msg string) { l.log(InfoLevel, msg) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string) { l.log(WarnLevel, msg) }

// Error logs at error level.
func (l *Logger) Error(msg string) { l.log(ErrorLevel, msg) }

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		entry := make(map[string]interface{}, len(l.fields)+3)
		for k, v := range l.fields {
			entry[k] = v
		}
		entry["time"] = time.Now().Format(time.RFC3339)
		entry["level"] = levelString(level)
		entry["msg"] = msg
		data, err := json.Marshal(entry)
		if err != nil {
			data = []byte(fmt.Sprintf(`{"level":"error","msg":"marshal log entry: %v"}`, err))
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	// Text format: TIME [LEVEL] message key=value, fields sorted for
	// stable output.
	fmt.Fprintf(l.output, "%s [%s] %s",
		time.Now().Format("15:04:05"),
		strings.ToUpper(levelString(level)),
		msg)

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(l.output, " %s=%v", k, l.fields[k])
	}
	fmt.Fprintln(l.output)
}

// ParseLevel converts a config string to a LogLevel. Unknown values
// default to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func levelString(l LogLevel) string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}
