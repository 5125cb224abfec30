package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeCommand          EventType = "command"
	EventTypeStep             EventType = "step"
	EventTypeToken            EventType = "token"
	EventTypeSession          EventType = "session"
	EventTypePersist          EventType = "persist"
	EventTypeTransportWarning EventType = "transport_warning"
	EventTypeError            EventType = "error"
	EventTypeHeartbeat        EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	Module    string    `json:"module,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type traceKey struct{}

// WithTrace tags ctx with a fresh trace id so every event logged while
// handling one inbound event can be correlated.
func WithTrace(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceKey{}, uuid.NewString())
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// Logger handles structured logging. A nil *Logger discards everything.
type Logger struct {
	Out io.Writer

	mu           sync.Mutex
	errorLogPath string
	maxSize      int64
}

// NewLogger writes events to stdout and keeps warnings and errors in
// <dir>/error.jsonl. An empty dir disables the file.
func NewLogger(dir string) *Logger {
	l := &Logger{
		Out:     os.Stdout,
		maxSize: 10 * 1024 * 1024, // 10MB
	}
	if dir != "" {
		l.errorLogPath = filepath.Join(dir, "error.jsonl")
	}
	return l
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(l.Out, "{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.Out, string(data))

	if evt.Type == EventTypeError || evt.Type == EventTypeTransportWarning {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if l.errorLogPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.errorLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.errorLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.errorLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.errorLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.errorLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogCommand(ctx context.Context, module, userID, name string) {
	l.Log(Event{
		Type:    EventTypeCommand,
		Module:  module,
		UserID:  userID,
		TraceID: TraceID(ctx),
		Data:    map[string]string{"command": name},
	})
}

func (l *Logger) LogStep(ctx context.Context, module, channelID, action, prompt string) {
	l.Log(Event{
		Type:      EventTypeStep,
		Module:    module,
		ChannelID: channelID,
		TraceID:   TraceID(ctx),
		Data: map[string]string{
			"action": action,
			"prompt": prompt,
		},
	})
}

func (l *Logger) LogToken(ctx context.Context, module, action string, token int) {
	l.Log(Event{
		Type:    EventTypeToken,
		Module:  module,
		TraceID: TraceID(ctx),
		Data: map[string]any{
			"action": action,
			"token":  token,
		},
	})
}

func (l *Logger) LogSession(ctx context.Context, module, userID, channelID, action string) {
	l.Log(Event{
		Type:      EventTypeSession,
		Module:    module,
		UserID:    userID,
		ChannelID: channelID,
		TraceID:   TraceID(ctx),
		Data:      map[string]string{"action": action},
	})
}

func (l *Logger) LogTransportWarning(ctx context.Context, module, channelID, op string, err error) {
	l.Log(Event{
		Type:      EventTypeTransportWarning,
		Module:    module,
		ChannelID: channelID,
		TraceID:   TraceID(ctx),
		Data: map[string]string{
			"op":    op,
			"error": err.Error(),
		},
	})
}

func (l *Logger) LogPersist(ctx context.Context, module string, err error) {
	evt := Event{
		Type:    EventTypePersist,
		Module:  module,
		TraceID: TraceID(ctx),
		Data:    map[string]string{"status": "saved"},
	}
	if err != nil {
		evt.Type = EventTypeError
		evt.Data = map[string]string{"op": "persist", "error": err.Error()}
	}
	l.Log(evt)
}

func (l *Logger) LogError(ctx context.Context, module, userID string, err error) {
	l.Log(Event{
		Type:    EventTypeError,
		Module:  module,
		UserID:  userID,
		TraceID: TraceID(ctx),
		Data:    map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}
