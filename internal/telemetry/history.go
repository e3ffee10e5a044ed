package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownKind is returned by Record for samples without a routable payload.
var ErrUnknownKind = errors.New("UNKNOWN_KIND")

// Capacities sizes the aggregator buffers.
type Capacities struct {
	Inertial    int
	Magnetic    int
	Scalar      int // battery and temperature chart history
	PositionLog int
}

// DefaultCapacities returns the standard buffer sizes.
func DefaultCapacities() Capacities {
	return Capacities{
		Inertial:    30,
		Magnetic:    30,
		Scalar:      30,
		PositionLog: 100,
	}
}

// State is a read-only composite of everything the aggregator holds.
// Histories are copies taken under a single read lock.
type State struct {
	BatteryVoltage     float64             `json:"batteryVoltage"`
	Temperature        float64             `json:"temperature"`
	Inertial           Inertial            `json:"inertial"`
	Magnetic           Magnetic            `json:"magnetic"`
	CurrentPosition    *Reading[Position]  `json:"currentPosition,omitempty"`
	InertialHistory    []Reading[Inertial] `json:"inertialHistory"`
	MagneticHistory    []Reading[Magnetic] `json:"magneticHistory"`
	BatteryHistory     []Reading[float64]  `json:"batteryHistory"`
	TemperatureHistory []Reading[float64]  `json:"temperatureHistory"`
	PositionLog        []PositionLogEntry  `json:"positionLog"`
	SessionID          string              `json:"sessionId,omitempty"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// Aggregator owns one ChannelBuffer per telemetry kind plus latest-value
// cells for battery, temperature and position. Record is the only
// ingestion path; callers serialize it through a single writer.
type Aggregator struct {
	mu sync.RWMutex

	inertial    *ChannelBuffer[Reading[Inertial]]
	magnetic    *ChannelBuffer[Reading[Magnetic]]
	battery     *ChannelBuffer[Reading[float64]]
	temperature *ChannelBuffer[Reading[float64]]
	positionLog *ChannelBuffer[PositionLogEntry]

	batteryVoltage     float64
	currentTemperature float64
	currentPosition    *Reading[Position]
	sessionID          string
	updatedAt          time.Time
}

// NewAggregator creates an aggregator with the given buffer sizes.
func NewAggregator(caps Capacities) *Aggregator {
	return &Aggregator{
		inertial:    NewChannelBuffer[Reading[Inertial]](caps.Inertial),
		magnetic:    NewChannelBuffer[Reading[Magnetic]](caps.Magnetic),
		battery:     NewChannelBuffer[Reading[float64]](caps.Scalar),
		temperature: NewChannelBuffer[Reading[float64]](caps.Scalar),
		positionLog: NewChannelBuffer[PositionLogEntry](caps.PositionLog),
	}
}

// Record routes a sample to its buffer or scalar cell. Position samples
// only update the current position; use LogPosition for the log.
func (a *Aggregator) Record(s Sample) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	at := s.CapturedAt()
	switch p := s.Payload().(type) {
	case Inertial:
		a.inertial.Push(Reading[Inertial]{CapturedAt: at, Value: p})
	case Magnetic:
		a.magnetic.Push(Reading[Magnetic]{CapturedAt: at, Value: p})
	case Battery:
		a.batteryVoltage = p.Voltage
		a.battery.Push(Reading[float64]{CapturedAt: at, Value: p.Voltage})
	case Temperature:
		a.currentTemperature = p.Celsius
		a.temperature.Push(Reading[float64]{CapturedAt: at, Value: p.Celsius})
	case Position:
		a.currentPosition = &Reading[Position]{CapturedAt: at, Value: p}
	default:
		return fmt.Errorf("%w: %v", ErrUnknownKind, s.Kind())
	}

	a.updatedAt = at
	return nil
}

// LogPosition appends an admitted entry to the position log.
func (a *Aggregator) LogPosition(entry PositionLogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positionLog.Push(entry)
}

// ExportState returns a consistent copy of all buffers and cells.
func (a *Aggregator) ExportState() State {
	a.mu.RLock()
	defer a.mu.RUnlock()

	state := State{
		BatteryVoltage:     a.batteryVoltage,
		Temperature:        a.currentTemperature,
		InertialHistory:    a.inertial.Snapshot(),
		MagneticHistory:    a.magnetic.Snapshot(),
		BatteryHistory:     a.battery.Snapshot(),
		TemperatureHistory: a.temperature.Snapshot(),
		PositionLog:        a.positionLog.Snapshot(),
		SessionID:          a.sessionID,
		UpdatedAt:          a.updatedAt,
	}

	if n := len(state.InertialHistory); n > 0 {
		state.Inertial = state.InertialHistory[n-1].Value
	}
	if n := len(state.MagneticHistory); n > 0 {
		state.Magnetic = state.MagneticHistory[n-1].Value
	}
	if a.currentPosition != nil {
		pos := *a.currentPosition
		state.CurrentPosition = &pos
	}

	return state
}

// SetSessionID tags the held history with the session that produced it.
// The tag outlives the session so a later export still names it.
func (a *Aggregator) SetSessionID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = id
}

// LastPositionID returns the id of the newest position log entry, or 0.
func (a *Aggregator) LastPositionID() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if last, ok := a.positionLog.Latest(); ok {
		return last.ID
	}
	return 0
}

// Reset clears every buffer and cell.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.inertial.Reset()
	a.magnetic.Reset()
	a.battery.Reset()
	a.temperature.Reset()
	a.positionLog.Reset()
	a.batteryVoltage = 0
	a.currentTemperature = 0
	a.currentPosition = nil
	a.sessionID = ""
	a.updatedAt = time.Time{}
}
