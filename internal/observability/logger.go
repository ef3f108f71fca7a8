package observability

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeReasoning   EventType = "reasoning"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeSession     EventType = "session"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger appends structured JSON events to a size-capped JSONL file.
// All methods are safe on a nil receiver so callers never need to guard.
type Logger struct {
	mu      sync.Mutex
	path    string
	maxSize int64
}

func NewLogger(dir string) *Logger {
	return &Logger{
		path:    filepath.Join(dir, "events.jsonl"),
		maxSize: 10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("failed to marshal event: %v", err)
		return
	}
	l.writeToFile(data)
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	if info, err := os.Stat(l.path); err == nil && info.Size() > l.maxSize {
		l.rotate()
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

// rotate keeps a single .old generation.
func (l *Logger) rotate() {
	oldPath := l.path + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.path, oldPath)
}

// Helper methods for common events

func (l *Logger) LogReasoning(sessionID, content string) {
	l.Log(Event{
		Type:      EventTypeReasoning,
		SessionID: sessionID,
		Data:      map[string]string{"content": content},
	})
}

func (l *Logger) LogToolCall(sessionID, tool, args string) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		SessionID: sessionID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(sessionID, tool, result string) {
	l.Log(Event{
		Type:      EventTypeToolResult,
		SessionID: sessionID,
		Data: map[string]string{
			"tool":   tool,
			"result": result,
		},
	})
}

func (l *Logger) LogPolicyCheck(sessionID, tool, effect, reason string) {
	l.Log(Event{
		Type:      EventTypePolicyCheck,
		SessionID: sessionID,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogSession(sessionID, status string, detail any) {
	l.Log(Event{
		Type:      EventTypeSession,
		SessionID: sessionID,
		Data: map[string]any{
			"status": status,
			"detail": detail,
		},
	})
}
