package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a := NewArchive(filepath.Join(t.TempDir(), "archive.db"))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func positionLog(n int, base time.Time) []telemetry.PositionLogEntry {
	log := make([]telemetry.PositionLogEntry, n)
	for i := range log {
		at := base.Add(time.Duration(i) * time.Second)
		log[i] = telemetry.PositionLogEntry{
			ID:         int64(i + 1),
			Timestamp:  at.Format(telemetry.LogTimeFormat),
			CapturedAt: at,
			Latitude:   10.77 + float64(i)*0.001,
			Longitude:  106.69,
			Accuracy:   7,
		}
	}
	return log
}

func TestSaveAndListExports(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	first, err := a.SaveExport(ctx, ExportRecord{
		FileName:       "drone-log-1.json",
		SessionID:      "s-1",
		ExportedAt:     base,
		SizeBytes:      2048,
		BatteryVoltage: 12.1,
		Temperature:    31.5,
	}, positionLog(5, base))
	if err != nil {
		t.Fatalf("SaveExport() failed: %v", err)
	}
	second, err := a.SaveExport(ctx, ExportRecord{
		FileName:   "drone-log-2.json",
		ExportedAt: base.Add(time.Minute),
	}, nil)
	if err != nil {
		t.Fatalf("SaveExport() failed: %v", err)
	}
	if second <= first {
		t.Errorf("ids %d then %d, want increasing", first, second)
	}

	records, err := a.Exports(ctx, 0)
	if err != nil {
		t.Fatalf("Exports() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != second || records[1].ID != first {
		t.Errorf("order = [%d %d], want newest first", records[0].ID, records[1].ID)
	}

	got := records[1]
	if got.FileName != "drone-log-1.json" || got.SessionID != "s-1" || got.Positions != 5 {
		t.Errorf("record = %+v", got)
	}
	if !got.ExportedAt.Equal(base) {
		t.Errorf("ExportedAt = %v, want %v", got.ExportedAt, base)
	}
	if records[0].SessionID != "" || records[0].Positions != 0 {
		t.Errorf("second record = %+v", records[0])
	}

	limited, err := a.Exports(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Exports(1) = %d records, %v", len(limited), err)
	}
}

func TestPositionLogRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	want := positionLog(100, base)

	id, err := a.SaveExport(ctx, ExportRecord{FileName: "f.json", ExportedAt: base}, want)
	if err != nil {
		t.Fatalf("SaveExport() failed: %v", err)
	}

	got, err := a.PositionLog(ctx, id)
	if err != nil {
		t.Fatalf("PositionLog() failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Timestamp != want[i].Timestamp || got[i].Latitude != want[i].Latitude {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].CapturedAt.Equal(want[i].CapturedAt) {
			t.Fatalf("entry %d CapturedAt = %v, want %v", i, got[i].CapturedAt, want[i].CapturedAt)
		}
	}

	empty, err := a.PositionLog(ctx, id+100)
	if err != nil || len(empty) != 0 {
		t.Errorf("PositionLog(unknown) = %v, %v", empty, err)
	}
}

func TestListBeforeAnySave(t *testing.T) {
	a := newTestArchive(t)

	records, err := a.Exports(context.Background(), 10)
	if err != nil {
		t.Fatalf("Exports() failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records on a fresh archive", len(records))
	}
}

func TestConcurrentSaves(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Now().UTC()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.SaveExport(ctx, ExportRecord{FileName: "f.json", ExportedAt: base.Add(time.Duration(i) * time.Millisecond)}, positionLog(3, base))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("SaveExport() failed: %v", err)
		}
	}

	records, err := a.Exports(ctx, 0)
	if err != nil || len(records) != 10 {
		t.Errorf("Exports() = %d records, %v", len(records), err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	a := NewArchive(filepath.Join(t.TempDir(), "archive.db"))
	if _, err := a.Exports(context.Background(), 0); err != nil {
		t.Fatalf("Exports() failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("first Close() = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
