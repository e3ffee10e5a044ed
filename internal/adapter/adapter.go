package adapter

import (
	"context"
	"encoding/json"
	"time"
)

// Channel names one telemetry event stream.
type Channel string

const (
	ChannelInertialMagnetic Channel = "inertial-magnetic"
	ChannelBattery          Channel = "battery"
	ChannelPosition         Channel = "position"
	ChannelTemperature      Channel = "temperature"
)

// Channels lists every telemetry channel in handle order.
var Channels = [...]Channel{
	ChannelInertialMagnetic,
	ChannelBattery,
	ChannelPosition,
	ChannelTemperature,
}

// NumChannels is the number of telemetry channels.
const NumChannels = len(Channels)

// Index returns the channel's slot in Channels, or -1.
func (c Channel) Index() int {
	for i, ch := range Channels {
		if ch == c {
			return i
		}
	}
	return -1
}

// Event is one inbound telemetry message. Payload is the raw JSON body as
// produced by the link; decoding is the consumer's job.
type Event struct {
	Channel    Channel         `json:"channel"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"-"`
}

// Handler receives events for one channel. It may be called from any
// goroutine and must not block for long.
type Handler func(Event)

// Release detaches a handler. Calling it more than once is allowed; only
// the first call has effect.
type Release func() error

// Link defines the southbound contract to the vehicle.
type Link interface {
	// ListPorts enumerates serial ports the link could open.
	ListPorts(ctx context.Context) ([]string, error)

	// Connect opens a session on port at baud and waits for the vehicle ack.
	Connect(ctx context.Context, port string, baud int) error

	// Disconnect closes the session.
	Disconnect(ctx context.Context) error

	// StartTelemetryStream asks the vehicle to begin emitting telemetry.
	StartTelemetryStream(ctx context.Context) error

	// Subscribe registers h for events on ch.
	Subscribe(ctx context.Context, ch Channel, h Handler) (Release, error)

	// TestMotor spins one motor (or "all") at throttle percent for duration.
	TestMotor(ctx context.Context, motor string, throttle int, duration time.Duration) error

	// SetThrottle sets the global throttle percent.
	SetThrottle(ctx context.Context, percent int) error

	// StopMotors stops every motor.
	StopMotors(ctx context.Context) error
}
