package telemetry

// Battery pack model: 3S LiPo, 11.0 V empty to 12.6 V full.
const (
	batteryEmptyVolts = 11.0
	batteryRangeVolts = 1.6
)

// Level is a coarse status band for display.
type Level string

const (
	LevelGood     Level = "good"
	LevelFair     Level = "fair"
	LevelLow      Level = "low"
	LevelNormal   Level = "normal"
	LevelWarm     Level = "warm"
	LevelHot      Level = "hot"
	LevelCritical Level = "critical"
)

// Status is the derived "now" view used by status widgets.
type Status struct {
	BatteryVoltage   float64            `json:"batteryVoltage"`
	BatteryPercent   float64            `json:"batteryPercent"`
	BatteryLevel     Level              `json:"batteryLevel"`
	Temperature      float64            `json:"temperature"`
	TemperatureLevel Level              `json:"temperatureLevel"`
	CurrentPosition  *Reading[Position] `json:"currentPosition,omitempty"`
	GPS              GPSStats           `json:"gps"`
}

// GPSStats summarises the position log.
type GPSStats struct {
	TotalPoints     int               `json:"totalPoints"`
	AverageAccuracy float64           `json:"averageAccuracy"`
	Latest          *PositionLogEntry `json:"latest,omitempty"`
}

// BatteryPercent maps pack voltage to a 0-100 charge estimate.
func BatteryPercent(volts float64) float64 {
	pct := (volts - batteryEmptyVolts) / batteryRangeVolts * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// BatteryLevel bands a charge percentage.
func BatteryLevel(percent float64) Level {
	switch {
	case percent >= 80:
		return LevelGood
	case percent >= 50:
		return LevelFair
	case percent >= 20:
		return LevelLow
	default:
		return LevelCritical
	}
}

// TemperatureLevel bands a board temperature in °C.
func TemperatureLevel(celsius float64) Level {
	switch {
	case celsius < 35:
		return LevelNormal
	case celsius < 50:
		return LevelWarm
	case celsius < 70:
		return LevelHot
	default:
		return LevelCritical
	}
}

// ComputeGPSStats summarises a position log.
func ComputeGPSStats(log []PositionLogEntry) GPSStats {
	stats := GPSStats{TotalPoints: len(log)}
	if len(log) == 0 {
		return stats
	}

	var sum float64
	for _, e := range log {
		sum += e.Accuracy
	}
	stats.AverageAccuracy = sum / float64(len(log))
	latest := log[len(log)-1]
	stats.Latest = &latest
	return stats
}

// Status derives the status view from one consistent export.
func (a *Aggregator) Status() Status {
	state := a.ExportState()
	pct := BatteryPercent(state.BatteryVoltage)
	return Status{
		BatteryVoltage:   state.BatteryVoltage,
		BatteryPercent:   pct,
		BatteryLevel:     BatteryLevel(pct),
		Temperature:      state.Temperature,
		TemperatureLevel: TemperatureLevel(state.Temperature),
		CurrentPosition:  state.CurrentPosition,
		GPS:              ComputeGPSStats(state.PositionLog),
	}
}
