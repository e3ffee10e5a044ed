package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gioimtg2003/control-drone-first/internal/auth"
	"github.com/gioimtg2003/control-drone-first/internal/config"
)

// FileName is the audit log file name inside the audit directory.
const FileName = "audit.jsonl"

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	SessionID string                 `json:"sessionId,omitempty"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs int64                  `json:"latencyMs"`
}

// Logger appends audit entries as JSON lines.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	closer   io.Closer
	filePath string
	now      func() time.Time
}

// NewLogger opens a rotating audit log in cfg.Dir.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	path := filepath.Join(cfg.Dir, FileName)
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return &Logger{out: rotator, closer: rotator, filePath: path, now: time.Now}, nil
}

// NewWriterLogger writes entries to w without rotation.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w, now: time.Now}
}

// FilePath returns the active log file, or "" for writer loggers.
func (l *Logger) FilePath() string {
	return l.filePath
}

// LogAction records one operator action. A nil err is recorded as SUCCESS.
func (l *Logger) LogAction(ctx context.Context, action, sessionID string, params map[string]interface{}, err error, latency time.Duration) {
	entry := Entry{
		Timestamp: l.now().UTC(),
		User:      userFromContext(ctx),
		SessionID: sessionID,
		Action:    action,
		Params:    params,
		Outcome:   "success",
		Code:      CodeFromError(err),
		LatencyMs: latency.Milliseconds(),
	}
	if err != nil {
		entry.Outcome = "error"
	}
	l.writeEntry(entry)
}

// Close closes the underlying file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) writeEntry(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

func userFromContext(ctx context.Context) string {
	if claims := auth.ClaimsFromContext(ctx); claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	return "unknown"
}

// Known codes, longest first so SESSION_BUSY wins over BUSY.
var codes = []string{
	"SUBSCRIPTION_FAILED",
	"TEST_IN_PROGRESS",
	"INVALID_DURATION",
	"INVALID_THROTTLE",
	"CONNECT_FAILED",
	"NOT_CONNECTED",
	"INVALID_MOTOR",
	"SESSION_BUSY",
	"INVALID_PORT",
	"INVALID_BAUD",
	"UNAUTHORIZED",
	"UNAVAILABLE",
	"EXPORT_IO",
	"FORBIDDEN",
	"REJECTED",
	"INTERNAL",
	"TIMEOUT",
	"BUSY",
}

// CodeFromError maps an error to its audit code.
func CodeFromError(err error) string {
	if err == nil {
		return "SUCCESS"
	}
	msg := err.Error()
	for _, code := range codes {
		if strings.Contains(msg, code) {
			return code
		}
	}
	return "ERROR"
}
