package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/command"
	"github.com/gioimtg2003/control-drone-first/internal/export"
	"github.com/gioimtg2003/control-drone-first/internal/recording"
	"github.com/gioimtg2003/control-drone-first/internal/session"
	"github.com/gioimtg2003/control-drone-first/internal/storage"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

// SessionPort defines what the API needs from the session manager.
type SessionPort interface {
	ListPorts(ctx context.Context) ([]string, error)
	Connect(ctx context.Context, port string, baud int) (session.Info, error)
	Disconnect(ctx context.Context) error
	Info() session.Info
	SessionID() string
	StartRecording() recording.State
	StopRecording() recording.State
	RecordingState() recording.State
	Recorded() int64
	Aggregator() *telemetry.Aggregator
}

// TelemetryPort defines the minimal interface the API needs from the telemetry hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	ClientCount() int
}

// ExportPort produces snapshots and export files.
type ExportPort interface {
	Snapshot(now time.Time) export.Document
	Export(ctx context.Context) (export.Result, error)
}

// ArchivePort lists archived exports.
type ArchivePort interface {
	Exports(ctx context.Context, limit int) ([]storage.ExportRecord, error)
}

// AuditLogger writes audit records for session-level actions.
type AuditLogger interface {
	LogAction(ctx context.Context, action, sessionID string, params map[string]interface{}, err error, latency time.Duration)
}

// Compile-time assertions for port conformance
var (
	_ SessionPort       = (*session.Manager)(nil)
	_ TelemetryPort     = (*telemetry.Hub)(nil)
	_ ExportPort        = (*export.Exporter)(nil)
	_ ArchivePort       = (*storage.Archive)(nil)
	_ command.MotorPort = (*command.Orchestrator)(nil)
)
