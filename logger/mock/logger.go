package mocklogger

import (
	"sync"

	"github.com/hugolhafner/go-consumer/logger"
)

var _ logger.Logger = (*MockLogger)(nil)

type LogEntry struct {
	Level   logger.LogLevel
	Message string
	KV      []any
	Fields  []any
}

type store struct {
	mu      sync.Mutex
	entries []LogEntry
}

// MockLogger records every log call. Loggers derived with With share the same store.
type MockLogger struct {
	store  *store
	fields []any
}

func New() *MockLogger {
	return &MockLogger{store: &store{}}
}

func (m *MockLogger) Log(level logger.LogLevel, msg string, kv ...any) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	m.store.entries = append(
		m.store.entries, LogEntry{
			Level:   level,
			Message: msg,
			KV:      kv,
			Fields:  m.fields,
		},
	)
}

func (m *MockLogger) Level() logger.LogLevel {
	return logger.DebugLevel
}

func (m *MockLogger) With(kv ...any) logger.Logger {
	fields := make([]any, 0, len(m.fields)+len(kv))
	fields = append(fields, m.fields...)
	fields = append(fields, kv...)

	return &MockLogger{
		store:  m.store,
		fields: fields,
	}
}

// Entries returns a copy of everything logged so far.
func (m *MockLogger) Entries() []LogEntry {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	out := make([]LogEntry, len(m.store.entries))
	copy(out, m.store.entries)
	return out
}

func (m *MockLogger) Debug(msg string, kv ...any) {
	m.Log(logger.DebugLevel, msg, kv...)
}

func (m *MockLogger) Info(msg string, kv ...any) {
	m.Log(logger.InfoLevel, msg, kv...)
}

func (m *MockLogger) Warn(msg string, kv ...any) {
	m.Log(logger.WarnLevel, msg, kv...)
}

func (m *MockLogger) Error(msg string, kv ...any) {
	m.Log(logger.ErrorLevel, msg, kv...)
}
