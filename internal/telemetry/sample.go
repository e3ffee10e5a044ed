package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies a telemetry category.
type Kind int

const (
	KindInertial Kind = iota + 1
	KindMagnetic
	KindBattery
	KindTemperature
	KindPosition
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInertial:
		return "inertial"
	case KindMagnetic:
		return "magnetic"
	case KindBattery:
		return "battery"
	case KindTemperature:
		return "temperature"
	case KindPosition:
		return "position"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Vector3 is a three-axis sensor reading.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Payload is the kind-specific body of a Sample.
type Payload interface {
	Kind() Kind
}

// Inertial holds accelerometer (m/s²) and gyroscope (°/s) readings.
type Inertial struct {
	Accel Vector3 `json:"accel"`
	Gyro  Vector3 `json:"gyro"`
}

// Magnetic holds a magnetometer reading in µT.
type Magnetic struct {
	Mag Vector3 `json:"mag"`
}

// Battery holds the pack voltage.
type Battery struct {
	Voltage float64 `json:"voltage"`
}

// Temperature holds the board temperature in °C.
type Temperature struct {
	Celsius float64 `json:"temperature"`
}

// Position holds a GNSS fix. Accuracy is the horizontal accuracy radius.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

func (Inertial) Kind() Kind { return KindInertial }
func (Magnetic) Kind() Kind { return KindMagnetic }
func (Battery) Kind() Kind { return KindBattery }
func (Temperature) Kind() Kind { return KindTemperature }
func (Position) Kind() Kind { return KindPosition }

// Sample is an immutable timestamped telemetry value.
type Sample struct {
	kind       Kind
	capturedAt time.Time
	payload    Payload
}

// NewSample builds a sample whose kind is taken from the payload.
func NewSample(payload Payload, capturedAt time.Time) Sample {
	return Sample{
		kind:       payload.Kind(),
		capturedAt: capturedAt,
		payload:    payload,
	}
}

// Kind returns the telemetry kind.
func (s Sample) Kind() Kind { return s.kind }

// CapturedAt returns the capture timestamp.
func (s Sample) CapturedAt() time.Time { return s.capturedAt }

// Payload returns the kind-specific body.
func (s Sample) Payload() Payload { return s.payload }

// MarshalJSON encodes the sample for the live stream.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind       string    `json:"kind"`
		CapturedAt time.Time `json:"capturedAt"`
		Value      Payload   `json:"value"`
	}{s.kind.String(), s.capturedAt, s.payload})
}

// Reading is a JSON-friendly view of a buffered sample used for history export.
type Reading[T any] struct {
	CapturedAt time.Time `json:"capturedAt"`
	Value      T         `json:"value"`
}

// PositionLogEntry is a recorded position fix with its sequential log id.
type PositionLogEntry struct {
	ID         int64     `json:"id"`
	Timestamp  string    `json:"timestamp"`
	CapturedAt time.Time `json:"-"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
}

// LogTimeFormat formats the capture time shown in the position log.
const LogTimeFormat = "15:04:05"
