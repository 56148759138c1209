package log

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Record is one captured log entry.
type Record struct {
	Level   Level
	Message string
	Fields  map[string]any
}

// recordSink is shared by a TestLogger and all loggers derived from it with
// With, so concurrent restarts can log into the same capture.
type recordSink struct {
	mu      sync.Mutex
	level   Level
	records []Record
}

// TestLogger captures records in memory so tests can assert on what a
// training run reported. It is safe for concurrent use.
type TestLogger struct {
	sink   *recordSink
	fields map[string]any
}

// NewTestLogger creates a TestLogger that keeps records at or above level.
//
//	logger := log.NewTestLogger(log.LevelDebug)
//	model := mixture.NewSGDGMM(3, mixture.WithLogger(logger))
//	...
//	if !logger.ContainsMessage("Restart finished") { ... }
func NewTestLogger(level Level) *TestLogger {
	return &TestLogger{
		sink:   &recordSink{level: level},
		fields: map[string]any{},
	}
}

// Debug implements Logger.Debug.
func (t *TestLogger) Debug(msg string, fields ...any) { t.record(LevelDebug, msg, fields) }

// Info implements Logger.Info.
func (t *TestLogger) Info(msg string, fields ...any) { t.record(LevelInfo, msg, fields) }

// Warn implements Logger.Warn.
func (t *TestLogger) Warn(msg string, fields ...any) { t.record(LevelWarn, msg, fields) }

// Error implements Logger.Error. A leading error field is stored under
// ErrAttrKey.
func (t *TestLogger) Error(msg string, fields ...any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttrKey, err}, fields[1:]...)
		}
	}
	t.record(LevelError, msg, fields)
}

// With implements Logger.With.
func (t *TestLogger) With(fields ...any) Logger {
	merged := make(map[string]any, len(t.fields)+len(fields)/2)
	for k, v := range t.fields {
		merged[k] = v
	}
	addPairs(merged, fields)
	return &TestLogger{sink: t.sink, fields: merged}
}

// Enabled implements Logger.Enabled.
func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return level >= t.sink.level
}

func (t *TestLogger) record(level Level, msg string, fields []any) {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	if level < t.sink.level {
		return
	}
	all := make(map[string]any, len(t.fields)+len(fields)/2)
	for k, v := range t.fields {
		all[k] = v
	}
	addPairs(all, fields)
	t.sink.records = append(t.sink.records, Record{Level: level, Message: msg, Fields: all})
}

// addPairs copies alternating key/value pairs into dst. Errors are stored
// by message so records compare with plain strings.
func addPairs(dst map[string]any, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if err, ok := fields[i+1].(error); ok {
			dst[key] = err.Error()
			continue
		}
		dst[key] = fields[i+1]
	}
}

// Records returns a copy of the captured records.
func (t *TestLogger) Records() []Record {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	out := make([]Record, len(t.sink.records))
	copy(out, t.sink.records)
	return out
}

// ContainsMessage reports whether any record message contains message.
func (t *TestLogger) ContainsMessage(message string) bool {
	for _, r := range t.Records() {
		if strings.Contains(r.Message, message) {
			return true
		}
	}
	return false
}

// ContainsField reports whether any record carries key with the given value.
func (t *TestLogger) ContainsField(key string, value any) bool {
	for _, r := range t.Records() {
		if v, ok := r.Fields[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Count returns the number of records whose message equals message.
func (t *TestLogger) Count(message string) int {
	n := 0
	for _, r := range t.Records() {
		if r.Message == message {
			n++
		}
	}
	return n
}

// Clear drops all captured records.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.records = nil
}

// TestLoggerProvider implements LoggerProvider over a single TestLogger.
type TestLoggerProvider struct {
	logger *TestLogger
}

// NewTestLoggerProvider creates a provider whose loggers share one capture.
func NewTestLoggerProvider(level Level) *TestLoggerProvider {
	return &TestLoggerProvider{logger: NewTestLogger(level)}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *TestLoggerProvider) GetLogger() Logger { return p.logger }

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.logger.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *TestLoggerProvider) SetLevel(level Level) {
	p.logger.sink.mu.Lock()
	defer p.logger.sink.mu.Unlock()
	p.logger.sink.level = level
}

// Logger returns the capturing logger.
func (p *TestLoggerProvider) Logger() *TestLogger { return p.logger }
