// Package storage archives exported telemetry snapshots in SQLite so past
// exports can be listed after the files have moved on.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

// ExportRecord describes one archived export.
type ExportRecord struct {
	ID             int64     `json:"id"`
	FileName       string    `json:"fileName"`
	SessionID      string    `json:"sessionId,omitempty"`
	ExportedAt     time.Time `json:"exportedAt"`
	SizeBytes      int64     `json:"sizeBytes"`
	BatteryVoltage float64   `json:"batteryVoltage"`
	Temperature    float64   `json:"temperature"`
	Positions      int       `json:"positions"`
}

// Archive stores export records. Writes go through a WAL connection that
// also owns the schema; reads use a separate read-only connection.
type Archive struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewArchive returns an archive backed by the database at dbPath. The file
// is created on first use.
func NewArchive(dbPath string) *Archive {
	return &Archive{dbPath: dbPath}
}

func (a *Archive) getWriteDB() (*sql.DB, error) {
	a.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", a.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			a.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			a.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		a.writeDB = db
	})

	return a.writeDB, a.writeDBErr
}

func (a *Archive) getReadDB() (*sql.DB, error) {
	// The schema must exist before a read-only connection can see it.
	if _, err := a.getWriteDB(); err != nil {
		return nil, err
	}

	a.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", a.dbPath, "mode=ro"))
		if err != nil {
			a.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		a.readDB = db
	})

	return a.readDB, a.readDBErr
}

// SaveExport stores rec and its position log in one transaction and returns
// the new record id.
func (a *Archive) SaveExport(ctx context.Context, rec ExportRecord, log []telemetry.PositionLogEntry) (id int64, err error) {
	db, err := a.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(ctx, insertExportSQL,
		rec.FileName,
		sql.NullString{String: rec.SessionID, Valid: rec.SessionID != ""},
		rec.ExportedAt.UTC(),
		rec.SizeBytes,
		rec.BatteryVoltage,
		rec.Temperature,
		len(log),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting export: %w", err)
	}
	if id, err = result.LastInsertId(); err != nil {
		return 0, fmt.Errorf("reading export id: %w", err)
	}

	if len(log) > 0 {
		values := make([]interface{}, 0, len(log)*7)

		var sb strings.Builder
		sb.WriteString(insertPositionSQL)
		for i, entry := range log {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
			values = append(values,
				id,
				entry.ID,
				entry.Timestamp,
				sql.NullTime{Time: entry.CapturedAt.UTC(), Valid: !entry.CapturedAt.IsZero()},
				entry.Latitude,
				entry.Longitude,
				entry.Accuracy,
			)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return 0, fmt.Errorf("batch inserting positions: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	return id, nil
}

// Exports returns up to limit records, newest first. limit <= 0 returns all.
func (a *Archive) Exports(ctx context.Context, limit int) (records []ExportRecord, err error) {
	db, err := a.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, selectExportsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying exports: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			rec       ExportRecord
			sessionID sql.NullString
		)
		if err = rows.Scan(
			&rec.ID,
			&rec.FileName,
			&sessionID,
			&rec.ExportedAt,
			&rec.SizeBytes,
			&rec.BatteryVoltage,
			&rec.Temperature,
			&rec.Positions,
		); err != nil {
			return nil, fmt.Errorf("scanning export: %w", err)
		}
		rec.SessionID = sessionID.String
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exports: %w", err)
	}
	return records, nil
}

// PositionLog returns the archived position log of one export in id order.
func (a *Archive) PositionLog(ctx context.Context, exportID int64) (entries []telemetry.PositionLogEntry, err error) {
	db, err := a.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectPositionLogSQL, exportID)
	if err != nil {
		return nil, fmt.Errorf("querying position log: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			entry      telemetry.PositionLogEntry
			capturedAt sql.NullTime
		)
		if err = rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&capturedAt,
			&entry.Latitude,
			&entry.Longitude,
			&entry.Accuracy,
		); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		entry.CapturedAt = capturedAt.Time
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating position log: %w", err)
	}
	return entries, nil
}

// Close releases both connections. It is safe to call more than once.
func (a *Archive) Close() error {
	a.closeOnce.Do(func() {
		var writeErr, readErr error

		if a.readDB != nil {
			readErr = a.readDB.Close()
			a.readDB = nil
		}
		if a.writeDB != nil {
			writeErr = a.writeDB.Close()
			a.writeDB = nil
		}

		a.closeErr = errors.Join(readErr, writeErr)
	})

	return a.closeErr
}
