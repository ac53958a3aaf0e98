package log

import (
	"fmt"
	"strings"
	"sync"
)

// MemoryLogger captures all log messages in memory for testing.
// Thread-safe for concurrent use.
type MemoryLogger struct {
	mu       sync.Mutex
	messages []LogMessage
}

// LogMessage represents a captured log entry
type LogMessage struct {
	Level   string // "INFO", "DEBUG", "WARN", "ERROR"
	Message string
}

// NewMemoryLogger creates a new MemoryLogger for testing
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{
		messages: make([]LogMessage, 0),
	}
}

func (m *MemoryLogger) append(level, format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, LogMessage{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}

func (m *MemoryLogger) Info(format string, args ...any)  { m.append("INFO", format, args...) }
func (m *MemoryLogger) Debug(format string, args ...any) { m.append("DEBUG", format, args...) }
func (m *MemoryLogger) Warn(format string, args ...any)  { m.append("WARN", format, args...) }
func (m *MemoryLogger) Error(format string, args ...any) { m.append("ERROR", format, args...) }

// GetMessages returns a copy of all captured messages
func (m *MemoryLogger) GetMessages() []LogMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]LogMessage, len(m.messages))
	copy(result, m.messages)
	return result
}

// HasMessage checks if any message contains the given substring
func (m *MemoryLogger) HasMessage(substring string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if strings.Contains(msg.Message, substring) {
			return true
		}
	}
	return false
}

// HasMessageWithLevel checks if any message at the given level contains the substring
func (m *MemoryLogger) HasMessageWithLevel(level, substring string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.Level == level && strings.Contains(msg.Message, substring) {
			return true
		}
	}
	return false
}

// Count returns the total number of captured messages
func (m *MemoryLogger) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// String returns a formatted string of all messages (useful for debugging tests)
func (m *MemoryLogger) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sb strings.Builder
	for i, msg := range m.messages {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, msg.Level, msg.Message))
	}
	return sb.String()
}
