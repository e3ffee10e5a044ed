package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

type batteryWire struct {
	Voltage *float64 `json:"voltage"`
}

type positionWire struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Sats     *float64 `json:"sats"`
	Accuracy *float64 `json:"accuracy"`
}

// Decode turns one link event into samples. An inertial-magnetic event
// yields an Inertial and a Magnetic sample; other channels yield one.
func Decode(event adapter.Event) ([]telemetry.Sample, error) {
	at := event.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	switch event.Channel {
	case adapter.ChannelInertialMagnetic:
		var f adapter.IMUFrame
		if err := json.Unmarshal(event.Payload, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.Channel, err)
		}
		return []telemetry.Sample{
			telemetry.NewSample(telemetry.Inertial{
				Accel: telemetry.Vector3{X: f.AccelX, Y: f.AccelY, Z: f.AccelZ},
				Gyro:  telemetry.Vector3{X: f.GyroX, Y: f.GyroY, Z: f.GyroZ},
			}, at),
			telemetry.NewSample(telemetry.Magnetic{
				Mag: telemetry.Vector3{X: f.MagX, Y: f.MagY, Z: f.MagZ},
			}, at),
		}, nil

	case adapter.ChannelBattery:
		// Bare number, or {"voltage": n}.
		var volts float64
		if err := json.Unmarshal(event.Payload, &volts); err != nil {
			var w batteryWire
			if err := json.Unmarshal(event.Payload, &w); err != nil || w.Voltage == nil {
				return nil, fmt.Errorf("decode %s: unexpected payload %s", event.Channel, event.Payload)
			}
			volts = *w.Voltage
		}
		return []telemetry.Sample{telemetry.NewSample(telemetry.Battery{Voltage: volts}, at)}, nil

	case adapter.ChannelTemperature:
		var f adapter.TemperatureFrame
		if err := json.Unmarshal(event.Payload, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.Channel, err)
		}
		celsius := 0.0
		if f.Temperature != nil {
			celsius = *f.Temperature
		}
		return []telemetry.Sample{telemetry.NewSample(telemetry.Temperature{Celsius: celsius}, at)}, nil

	case adapter.ChannelPosition:
		var w positionWire
		if err := json.Unmarshal(event.Payload, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.Channel, err)
		}
		if w.Lat == nil || w.Lon == nil {
			return nil, fmt.Errorf("decode %s: missing lat/lon", event.Channel)
		}
		pos := telemetry.Position{Latitude: *w.Lat, Longitude: *w.Lon}
		switch {
		case w.Accuracy != nil:
			pos.Accuracy = *w.Accuracy
		case w.Sats != nil:
			pos.Accuracy = *w.Sats
		}
		return []telemetry.Sample{telemetry.NewSample(pos, at)}, nil

	default:
		return nil, fmt.Errorf("decode: unknown channel %q", event.Channel)
	}
}
