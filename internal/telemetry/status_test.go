package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestBatteryPercent(t *testing.T) {
	tests := []struct {
		volts float64
		want  float64
	}{
		{10.0, 0},
		{11.0, 0},
		{11.8, 50},
		{12.6, 100},
		{13.2, 100},
	}
	for _, tt := range tests {
		if got := BatteryPercent(tt.volts); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("BatteryPercent(%v) = %v, want %v", tt.volts, got, tt.want)
		}
	}
}

func TestBatteryLevel(t *testing.T) {
	tests := []struct {
		pct  float64
		want Level
	}{
		{100, LevelGood},
		{80, LevelGood},
		{79.9, LevelFair},
		{50, LevelFair},
		{20, LevelLow},
		{19.9, LevelCritical},
	}
	for _, tt := range tests {
		if got := BatteryLevel(tt.pct); got != tt.want {
			t.Errorf("BatteryLevel(%v) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestTemperatureLevel(t *testing.T) {
	tests := []struct {
		c    float64
		want Level
	}{
		{20, LevelNormal},
		{35, LevelWarm},
		{49.9, LevelWarm},
		{50, LevelHot},
		{70, LevelCritical},
	}
	for _, tt := range tests {
		if got := TemperatureLevel(tt.c); got != tt.want {
			t.Errorf("TemperatureLevel(%v) = %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestComputeGPSStats(t *testing.T) {
	empty := ComputeGPSStats(nil)
	if empty.TotalPoints != 0 || empty.Latest != nil {
		t.Errorf("empty stats = %+v", empty)
	}

	stats := ComputeGPSStats([]PositionLogEntry{
		{ID: 1, Accuracy: 2},
		{ID: 2, Accuracy: 4},
	})
	if stats.TotalPoints != 2 || stats.AverageAccuracy != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Latest == nil || stats.Latest.ID != 2 {
		t.Errorf("Latest = %+v", stats.Latest)
	}
}

func TestAggregatorStatus(t *testing.T) {
	agg := NewAggregator(DefaultCapacities())
	_ = agg.Record(NewSample(Battery{Voltage: 12.6}, time.Now()))
	_ = agg.Record(NewSample(Temperature{Celsius: 55}, time.Now()))
	agg.LogPosition(PositionLogEntry{ID: 1, Accuracy: 1.5})

	status := agg.Status()
	if status.BatteryPercent != 100 || status.BatteryLevel != LevelGood {
		t.Errorf("battery status = %v %s", status.BatteryPercent, status.BatteryLevel)
	}
	if status.TemperatureLevel != LevelHot {
		t.Errorf("TemperatureLevel = %s, want hot", status.TemperatureLevel)
	}
	if status.GPS.TotalPoints != 1 {
		t.Errorf("GPS.TotalPoints = %d", status.GPS.TotalPoints)
	}
}
