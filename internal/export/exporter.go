package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gioimtg2003/control-drone-first/internal/storage"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

// Inertial is the flat latest IMU reading in an export.
type Inertial struct {
	AccelX float64 `json:"accelX"`
	AccelY float64 `json:"accelY"`
	AccelZ float64 `json:"accelZ"`
	GyroX  float64 `json:"gyroX"`
	GyroY  float64 `json:"gyroY"`
	GyroZ  float64 `json:"gyroZ"`
	MagX   float64 `json:"magX"`
	MagY   float64 `json:"magY"`
	MagZ   float64 `json:"magZ"`
}

// Document is the exported file body.
type Document struct {
	ExportedAt      time.Time                               `json:"exportedAt"`
	SessionID       string                                  `json:"sessionId"`
	BatteryVoltage  float64                                 `json:"batteryVoltage"`
	Temperature     float64                                 `json:"temperature"`
	Inertial        Inertial                                `json:"inertial"`
	PositionLog     []telemetry.PositionLogEntry            `json:"positionLog"`
	InertialHistory []telemetry.Reading[telemetry.Inertial] `json:"inertialHistory"`
	MagneticHistory []telemetry.Reading[telemetry.Magnetic] `json:"magneticHistory"`
}

// Result describes a written export.
type Result struct {
	Path       string    `json:"path"`
	FileName   string    `json:"fileName"`
	SizeBytes  int64     `json:"sizeBytes"`
	Size       string    `json:"size"`
	Positions  int       `json:"positions"`
	ExportedAt time.Time `json:"exportedAt"`
	ArchiveID  int64     `json:"archiveId,omitempty"`
}

// Archiver records exports. *storage.Archive implements it.
type Archiver interface {
	SaveExport(ctx context.Context, rec storage.ExportRecord, log []telemetry.PositionLogEntry) (int64, error)
}

// StateSource supplies the aggregated telemetry.
type StateSource interface {
	ExportState() telemetry.State
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the exporter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) { e.logger = logger }
}

// WithArchive records every export in a.
func WithArchive(a Archiver) Option {
	return func(e *Exporter) { e.archive = a }
}

// Publisher receives export events.
type Publisher interface {
	PublishType(eventType string, data map[string]interface{})
}

// WithPublisher announces every written export on p.
func WithPublisher(p Publisher) Option {
	return func(e *Exporter) { e.publisher = p }
}

// Exporter turns aggregator state into export documents and files.
type Exporter struct {
	source    StateSource
	dir       string
	archive   Archiver
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewExporter creates an exporter writing into dir.
func NewExporter(source StateSource, dir string, opts ...Option) *Exporter {
	e := &Exporter{
		source:    source,
		dir:       dir,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot builds a document from one consistent read of the aggregator.
// The session id is the one tagged on the held history, so a snapshot
// taken after disconnect still names the session that recorded it.
func (e *Exporter) Snapshot(now time.Time) Document {
	state := e.source.ExportState()

	doc := Document{
		ExportedAt:     now.UTC(),
		SessionID:      state.SessionID,
		BatteryVoltage: state.BatteryVoltage,
		Temperature:    state.Temperature,
		Inertial: Inertial{
			AccelX: state.Inertial.Accel.X,
			AccelY: state.Inertial.Accel.Y,
			AccelZ: state.Inertial.Accel.Z,
			GyroX:  state.Inertial.Gyro.X,
			GyroY:  state.Inertial.Gyro.Y,
			GyroZ:  state.Inertial.Gyro.Z,
			MagX:   state.Magnetic.Mag.X,
			MagY:   state.Magnetic.Mag.Y,
			MagZ:   state.Magnetic.Mag.Z,
		},
		PositionLog:     state.PositionLog,
		InertialHistory: state.InertialHistory,
		MagneticHistory: state.MagneticHistory,
	}

	// Empty histories export as [] rather than null.
	if doc.PositionLog == nil {
		doc.PositionLog = []telemetry.PositionLogEntry{}
	}
	if doc.InertialHistory == nil {
		doc.InertialHistory = []telemetry.Reading[telemetry.Inertial]{}
	}
	if doc.MagneticHistory == nil {
		doc.MagneticHistory = []telemetry.Reading[telemetry.Magnetic]{}
	}
	return doc
}

// maxNameAttempts bounds the numeric suffixes tried for one millisecond.
const maxNameAttempts = 100

// FileName returns the export file name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("drone-log-%d.json", t.UTC().UnixMilli())
}

// candidateName returns base for n == 0, else base with a -n suffix.
func candidateName(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d.json", strings.TrimSuffix(base, ".json"), n)
}

// Export writes a snapshot file. The recording state does not matter; an
// empty log still exports. Archive failures are logged and do not fail the
// export.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	now := e.now()
	doc := e.Snapshot(now)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Result{}, &ExportIOError{Op: "encode", Path: e.dir, Err: err}
	}

	name, err := writeAtomic(e.dir, FileName(now), data)
	if err != nil {
		return Result{}, err
	}
	path := filepath.Join(e.dir, name)

	result := Result{
		Path:       path,
		FileName:   name,
		SizeBytes:  int64(len(data)),
		Size:       humanize.Bytes(uint64(len(data))),
		Positions:  len(doc.PositionLog),
		ExportedAt: doc.ExportedAt,
	}

	if e.archive != nil {
		id, err := e.archive.SaveExport(ctx, storage.ExportRecord{
			FileName:       name,
			SessionID:      doc.SessionID,
			ExportedAt:     doc.ExportedAt,
			SizeBytes:      result.SizeBytes,
			BatteryVoltage: doc.BatteryVoltage,
			Temperature:    doc.Temperature,
		}, doc.PositionLog)
		if err != nil {
			e.logger.Warn("export archive failed", "file", name, "error", err)
		} else {
			result.ArchiveID = id
		}
	}

	if e.publisher != nil {
		e.publisher.PublishType(telemetry.EventExport, map[string]interface{}{
			"file":      name,
			"size":      result.Size,
			"positions": result.Positions,
		})
	}

	e.logger.Info("telemetry exported",
		"file", name,
		"size", result.Size,
		"positions", result.Positions,
		"session_id", doc.SessionID)
	return result, nil
}

// writeAtomic writes data to a temp file, then claims the first free name
// derived from base and renames the temp file over it. An existing export
// is never replaced.
func writeAtomic(dir, base string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &ExportIOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".drone-log-*.tmp")
	if err != nil {
		return "", &ExportIOError{Op: "create", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", &ExportIOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", &ExportIOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", &ExportIOError{Op: "close", Path: tmpName, Err: err}
	}

	for n := 0; n < maxNameAttempts; n++ {
		name := candidateName(base, n)
		path := filepath.Join(dir, name)

		// The O_EXCL placeholder reserves the name against concurrent exports.
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			cleanup()
			return "", &ExportIOError{Op: "create", Path: path, Err: err}
		}
		_ = f.Close()

		if err := os.Rename(tmpName, path); err != nil {
			cleanup()
			_ = os.Remove(path)
			return "", &ExportIOError{Op: "rename", Path: path, Err: err}
		}
		return name, nil
	}

	cleanup()
	return "", &ExportIOError{Op: "create", Path: filepath.Join(dir, base), Err: fs.ErrExist}
}
