package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type unknownPayload struct{}

func (unknownPayload) Kind() Kind { return Kind(99) }

func TestNewSampleDerivesKind(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSample(Battery{Voltage: 12.1}, at)

	if s.Kind() != KindBattery {
		t.Errorf("Kind() = %v, want battery", s.Kind())
	}
	if !s.CapturedAt().Equal(at) {
		t.Errorf("CapturedAt() = %v", s.CapturedAt())
	}
	if s.Kind().String() != "battery" {
		t.Errorf("String() = %q", s.Kind().String())
	}
}

func TestAggregatorRoutesByKind(t *testing.T) {
	agg := NewAggregator(DefaultCapacities())
	now := time.Now()

	samples := []Sample{
		NewSample(Inertial{Accel: Vector3{X: 1}, Gyro: Vector3{Z: 2}}, now),
		NewSample(Magnetic{Mag: Vector3{Y: 3}}, now),
		NewSample(Battery{Voltage: 12.2}, now),
		NewSample(Temperature{Celsius: 41.5}, now),
		NewSample(Position{Latitude: 10.1, Longitude: 106.7, Accuracy: 2.5}, now),
	}
	for _, s := range samples {
		if err := agg.Record(s); err != nil {
			t.Fatalf("Record(%v) failed: %v", s.Kind(), err)
		}
	}

	state := agg.ExportState()
	if state.BatteryVoltage != 12.2 {
		t.Errorf("BatteryVoltage = %v", state.BatteryVoltage)
	}
	if state.Temperature != 41.5 {
		t.Errorf("Temperature = %v", state.Temperature)
	}
	if state.Inertial.Accel.X != 1 || state.Inertial.Gyro.Z != 2 {
		t.Errorf("Inertial = %+v", state.Inertial)
	}
	if state.Magnetic.Mag.Y != 3 {
		t.Errorf("Magnetic = %+v", state.Magnetic)
	}
	if state.CurrentPosition == nil || state.CurrentPosition.Value.Latitude != 10.1 {
		t.Errorf("CurrentPosition = %+v", state.CurrentPosition)
	}
	if len(state.InertialHistory) != 1 || len(state.MagneticHistory) != 1 {
		t.Errorf("history lengths = %d/%d", len(state.InertialHistory), len(state.MagneticHistory))
	}
	if len(state.BatteryHistory) != 1 || len(state.TemperatureHistory) != 1 {
		t.Errorf("scalar history lengths = %d/%d", len(state.BatteryHistory), len(state.TemperatureHistory))
	}

	// Position samples never reach the log through Record
	if len(state.PositionLog) != 0 {
		t.Errorf("PositionLog = %v, want empty", state.PositionLog)
	}
}

func TestAggregatorRejectsUnknownKind(t *testing.T) {
	agg := NewAggregator(DefaultCapacities())

	err := agg.Record(NewSample(unknownPayload{}, time.Now()))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Record() error = %v, want ErrUnknownKind", err)
	}
}

func TestAggregatorInertialHistoryBounded(t *testing.T) {
	agg := NewAggregator(DefaultCapacities())
	base := time.Now()

	for i := 1; i <= 150; i++ {
		s := NewSample(Inertial{Accel: Vector3{X: float64(i)}}, base.Add(time.Duration(i)*time.Millisecond))
		if err := agg.Record(s); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	history := agg.ExportState().InertialHistory
	if len(history) != 30 {
		t.Fatalf("len(history) = %d, want 30", len(history))
	}
	for i, r := range history {
		if want := float64(121 + i); r.Value.Accel.X != want {
			t.Fatalf("history[%d] = %v, want %v", i, r.Value.Accel.X, want)
		}
	}
}

func TestAggregatorPositionLogBounded(t *testing.T) {
	agg := NewAggregator(DefaultCapacities())

	for i := int64(1); i <= 120; i++ {
		agg.LogPosition(PositionLogEntry{ID: i})
	}

	log := agg.ExportState().PositionLog
	if len(log) != 100 {
		t.Fatalf("len(PositionLog) = %d, want 100", len(log))
	}
	if log[0].ID != 21 || log[99].ID != 120 {
		t.Errorf("log range = %d..%d, want 21..120", log[0].ID, log[99].ID)
	}
	if got := agg.LastPositionID(); got != 120 {
		t.Errorf("LastPositionID() = %d, want 120", got)
	}
}

func TestAggregatorSessionID(t *testing.T) {
	agg := NewAggregator(DefaultCapacities())
	if got := agg.LastPositionID(); got != 0 {
		t.Errorf("LastPositionID() on empty log = %d, want 0", got)
	}

	agg.SetSessionID("s-1")
	if got := agg.ExportState().SessionID; got != "s-1" {
		t.Errorf("SessionID = %q, want s-1", got)
	}
	agg.Reset()
	if got := agg.ExportState().SessionID; got != "" {
		t.Errorf("SessionID after Reset = %q, want empty", got)
	}
}

func TestAggregatorReset(t *testing.T) {
	agg := NewAggregator(DefaultCapacities())
	_ = agg.Record(NewSample(Battery{Voltage: 12}, time.Now()))
	_ = agg.Record(NewSample(Position{Latitude: 1}, time.Now()))
	agg.LogPosition(PositionLogEntry{ID: 1})

	agg.Reset()

	state := agg.ExportState()
	if state.BatteryVoltage != 0 || state.CurrentPosition != nil || len(state.PositionLog) != 0 {
		t.Errorf("state after Reset = %+v", state)
	}
	if !state.UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt after Reset = %v", state.UpdatedAt)
	}
}

// Exports taken during ingestion must always see a contiguous log prefix.
func TestAggregatorExportStateConsistentUnderIngestion(t *testing.T) {
	agg := NewAggregator(Capacities{Inertial: 30, Magnetic: 30, Scalar: 30, PositionLog: 1000})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 500; i++ {
			agg.LogPosition(PositionLogEntry{ID: i})
		}
	}()

	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				log := agg.ExportState().PositionLog
				for k, e := range log {
					if e.ID != int64(k+1) {
						t.Errorf("export saw id %d at index %d", e.ID, k)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestSampleMarshalJSON(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(NewSample(Temperature{Celsius: 31.5}, at))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"kind":"temperature","capturedAt":"2026-03-01T12:00:00Z","value":{"temperature":31.5}}`
	if string(raw) != want {
		t.Errorf("Marshal = %s, want %s", raw, want)
	}
}
