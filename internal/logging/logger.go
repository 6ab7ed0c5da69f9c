package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/austindbirch/rollbar_relay/internal/tracing"
)

// LogLevel represents the severity of the log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

// ParseLevel returns the LogLevel for s, falling back to info
func ParseLevel(s string) LogLevel {
	l := LogLevel(s)
	if _, ok := levelRank[l]; ok {
		return l
	}
	return LevelInfo
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      LogLevel       `json:"level"`
	Message    string         `json:"msg"`
	Service    string         `json:"service,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	SpanID     string         `json:"span_id,omitempty"`
	DeliveryID string         `json:"delivery_id,omitempty"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`

	logger *Logger
}

// Logger provides structured logging with trace correlation
type Logger struct {
	service string

	mu  sync.Mutex
	out io.Writer
	min LogLevel
}

// New creates a new structured logger for the given service, writing JSON lines to stdout
func New(service string) *Logger {
	return &Logger{
		service: service,
		out:     os.Stdout,
		min:     LevelDebug,
	}
}

// WithOutput redirects the logger to w and returns it
func (l *Logger) WithOutput(w io.Writer) *Logger {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
	return l
}

// SetLevel drops entries below min
func (l *Logger) SetLevel(min LogLevel) *Logger {
	l.mu.Lock()
	l.min = min
	l.mu.Unlock()
	return l
}

// Discard returns a logger that writes nothing, for tests and quiet CLIs
func Discard() *Logger {
	return New("").WithOutput(io.Discard)
}

func (l *Logger) entry(fields map[string]any) *LogEntry {
	l.mu.Lock()
	service := l.service
	l.mu.Unlock()

	return &LogEntry{
		Time:    time.Now().UTC(),
		Service: service,
		Fields:  fields,
		logger:  l,
	}
}

// WithContext creates a log entry with trace correlation from context
func (l *Logger) WithContext(ctx context.Context) *LogEntry {
	entry := l.entry(make(map[string]any))

	// Extract trace information from context
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		entry.TraceID = traceID
	}
	if spanID := tracing.GetSpanID(ctx); spanID != "" {
		entry.SpanID = spanID
	}

	return entry
}

// WithFields creates a log entry with arbitrary key-value pairs
func (l *Logger) WithFields(fields map[string]any) *LogEntry {
	return l.entry(fields)
}

// Plain creates a basic log entry without context
func (l *Logger) Plain() *LogEntry {
	return l.entry(make(map[string]any))
}

// Fluent interface methods for LogEntry

// WithTraceID sets the trace ID for the log entry
func (e *LogEntry) WithTraceID(traceID string) *LogEntry {
	e.TraceID = traceID
	return e
}

// WithDelivery sets the delivery ID for the log entry
func (e *LogEntry) WithDelivery(deliveryID string) *LogEntry {
	e.DeliveryID = deliveryID
	return e
}

// WithEndpoint sets the collector endpoint for the log entry
func (e *LogEntry) WithEndpoint(endpoint string) *LogEntry {
	e.Endpoint = endpoint
	return e
}

// WithField adds a single field to the log entry
func (e *LogEntry) WithField(key string, value any) *LogEntry {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithFields adds multiple fields to the log entry
func (e *LogEntry) WithFields(fields map[string]any) *LogEntry {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// WithError adds an error field to the log entry
func (e *LogEntry) WithError(err error) *LogEntry {
	if err != nil {
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields["error"] = err.Error()
	}
	return e
}

// Log methods

// Debug logs at debug level
func (e *LogEntry) Debug(message string) {
	e.log(LevelDebug, message)
}

// Debugf logs at debug level with formatting
func (e *LogEntry) Debugf(format string, args ...any) {
	e.log(LevelDebug, fmt.Sprintf(format, args...))
}

// Info logs at info level
func (e *LogEntry) Info(message string) {
	e.log(LevelInfo, message)
}

// Infof logs at info level with formatting
func (e *LogEntry) Infof(format string, args ...any) {
	e.log(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs at warn level
func (e *LogEntry) Warn(message string) {
	e.log(LevelWarn, message)
}

// Warnf logs at warn level with formatting
func (e *LogEntry) Warnf(format string, args ...any) {
	e.log(LevelWarn, fmt.Sprintf(format, args...))
}

// Error logs at error level
func (e *LogEntry) Error(message string) {
	e.log(LevelError, message)
}

// Errorf logs at error level with formatting
func (e *LogEntry) Errorf(format string, args ...any) {
	e.log(LevelError, fmt.Sprintf(format, args...))
}

// Fatal logs at fatal level and exits
func (e *LogEntry) Fatal(message string) {
	e.log(LevelFatal, message)
	os.Exit(1)
}

// Fatalf logs at fatal level with formatting and exits
func (e *LogEntry) Fatalf(format string, args ...any) {
	e.log(LevelFatal, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (e *LogEntry) log(level LogLevel, message string) {
	e.Level = level
	e.Message = message
	e.output()
}

// output writes the log entry as one JSON line
func (e *LogEntry) output() {
	l := e.logger
	if l == nil {
		l = defaultLogger
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if levelRank[e.Level] < levelRank[l.min] {
		return
	}

	// Clean up empty fields
	if len(e.Fields) == 0 {
		e.Fields = nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		fmt.Fprintf(l.out, "%s [%s] %s\n", e.Time.Format(time.RFC3339), e.Level, e.Message)
		return
	}

	_, _ = l.out.Write(append(data, '\n'))
}

// Global convenience functions

var defaultLogger = New("rollbar-relay")

// Default returns the package-level logger
func Default() *Logger {
	return defaultLogger
}

// WithContext creates a log entry with trace correlation from context using the default logger
func WithContext(ctx context.Context) *LogEntry {
	return defaultLogger.WithContext(ctx)
}

// WithFields creates a log entry with fields using the default logger
func WithFields(fields map[string]any) *LogEntry {
	return defaultLogger.WithFields(fields)
}

// Plain creates a basic log entry using the default logger
func Plain() *LogEntry {
	return defaultLogger.Plain()
}

// SetDefaultService sets the service name for the default logger
func SetDefaultService(service string) {
	defaultLogger.mu.Lock()
	defaultLogger.service = service
	defaultLogger.mu.Unlock()
}
