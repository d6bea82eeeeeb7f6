//
//
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the audit file written under the log directory.
const FileName = "audit.jsonl"

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	RequestID string         `json:"requestId"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	Code      string         `json:"code"`
	Message   string         `json:"message,omitempty"`
	LatencyMS int64          `json:"latencyMs"`
}

// Rotation bounds the size and age of audit files.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger appends audit entries to a rotated JSONL file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *lumberjack.Logger
}

// NewLogger creates the log directory if needed and returns a logger writing
// to FileName inside it.
func NewLogger(logDir string, rotation Rotation) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, FileName)
	return &Logger{
		filePath: filePath,
		file: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
		},
	}, nil
}

type paramsKey struct{}

// WithParams attaches command parameters to ctx for the audit entry.
func WithParams(ctx context.Context, params map[string]any) context.Context {
	return context.WithValue(ctx, paramsKey{}, params)
}

func paramsFromContext(ctx context.Context) map[string]any {
	params, _ := ctx.Value(paramsKey{}).(map[string]any)
	return params
}

// LogAction records one command outcome.
func (l *Logger) LogAction(ctx context.Context, action, requestID, code, message string, latency time.Duration) {
	l.writeEntry(Entry{
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Action:    action,
		Params:    paramsFromContext(ctx),
		Code:      code,
		Message:   message,
		LatencyMS: latency.Milliseconds(),
	})
}

// writeEntry writes an audit entry to the log file.
func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// FilePath returns the path to the audit log file.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Rotate moves the current file aside and starts a new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit logger closed")
	}
	return l.file.Rotate()
}

// Close closes the audit logger and its file. Entries logged afterwards are
// dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
