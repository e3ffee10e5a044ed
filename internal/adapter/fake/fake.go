// Package fake provides an in-memory Link for tests and demo runs.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
)

// MotorCall records one motor command received by the fake.
type MotorCall struct {
	Op       string
	Motor    string
	Throttle int
	Duration time.Duration
}

type listener struct {
	id      int
	handler adapter.Handler
}

// FakeLink implements adapter.Link in memory.
type FakeLink struct {
	mu sync.Mutex

	ports     []string
	connected bool
	port      string
	baud      int
	streaming int

	nextListener int
	listeners    map[adapter.Channel][]listener

	ackDelay       time.Duration
	simulateErrors map[string]string
	failRelease    map[adapter.Channel]bool
	failSubscribe  map[adapter.Channel]bool

	motorCalls []MotorCall
}

// NewFakeLink creates a fake link exposing the given ports.
func NewFakeLink(ports ...string) *FakeLink {
	if len(ports) == 0 {
		ports = []string{"/dev/ttyUSB0", "/dev/ttyACM0"}
	}
	return &FakeLink{
		ports:          ports,
		listeners:      make(map[adapter.Channel][]listener),
		simulateErrors: make(map[string]string),
		failRelease:    make(map[adapter.Channel]bool),
		failSubscribe:  make(map[adapter.Channel]bool),
	}
}

// ListPorts returns the configured ports.
func (f *FakeLink) ListPorts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.simulated("ListPorts"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ports), nil
}

// Connect waits for the configured ack delay, then marks the link open.
func (f *FakeLink) Connect(ctx context.Context, port string, baud int) error {
	f.mu.Lock()
	delay := f.ackDelay
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.simulated("Connect"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.ports, port) {
		return fmt.Errorf("UNAVAILABLE: port %s not found", port)
	}
	f.connected = true
	f.port = port
	f.baud = baud
	return nil
}

// Disconnect closes the link.
func (f *FakeLink) Disconnect(ctx context.Context) error {
	if err := f.simulated("Disconnect"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("NOT_CONNECTED: no connection is active")
	}
	f.connected = false
	f.streaming = 0
	return nil
}

// StartTelemetryStream counts stream starts.
func (f *FakeLink) StartTelemetryStream(ctx context.Context) error {
	if err := f.simulated("StartTelemetryStream"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("NOT_CONNECTED: stream requested without a session")
	}
	f.streaming++
	return nil
}

// Subscribe registers h on ch.
func (f *FakeLink) Subscribe(ctx context.Context, ch adapter.Channel, h adapter.Handler) (adapter.Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubscribe[ch] {
		return nil, fmt.Errorf("UNAVAILABLE: subscribe to %s failed", ch)
	}

	f.nextListener++
	id := f.nextListener
	f.listeners[ch] = append(f.listeners[ch], listener{id: id, handler: h})

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.listeners[ch] = slices.DeleteFunc(f.listeners[ch], func(l listener) bool { return l.id == id })
			if f.failRelease[ch] {
				err = fmt.Errorf("INTERNAL: release of %s listener failed", ch)
			}
		})
		return err
	}, nil
}

// TestMotor records a motor test.
func (f *FakeLink) TestMotor(ctx context.Context, motor string, throttle int, duration time.Duration) error {
	return f.motor(ctx, MotorCall{Op: "TestMotor", Motor: motor, Throttle: throttle, Duration: duration})
}

// SetThrottle records a throttle change.
func (f *FakeLink) SetThrottle(ctx context.Context, percent int) error {
	return f.motor(ctx, MotorCall{Op: "SetThrottle", Throttle: percent})
}

// StopMotors records a stop.
func (f *FakeLink) StopMotors(ctx context.Context) error {
	return f.motor(ctx, MotorCall{Op: "StopMotors"})
}

func (f *FakeLink) motor(ctx context.Context, call MotorCall) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.simulated(call.Op); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("NOT_CONNECTED: %s without a session", call.Op)
	}
	f.motorCalls = append(f.motorCalls, call)
	return nil
}

// Emit marshals payload and delivers it synchronously to every handler on ch.
func (f *FakeLink) Emit(ch adapter.Channel, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ch, err)
	}

	f.mu.Lock()
	handlers := make([]adapter.Handler, 0, len(f.listeners[ch]))
	for _, l := range f.listeners[ch] {
		handlers = append(handlers, l.handler)
	}
	f.mu.Unlock()

	event := adapter.Event{Channel: ch, Payload: raw, ReceivedAt: time.Now()}
	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Simulate emits synthetic telemetry on every channel each interval while
// connected, until ctx ends.
func (f *FakeLink) Simulate(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f.mu.Lock()
		live := f.connected && f.streaming > 0
		f.mu.Unlock()
		if !live {
			continue
		}

		tick++
		_ = f.Emit(adapter.ChannelInertialMagnetic, adapter.IMUFrame{
			AccelX: 0.2 * math.Sin(tick/5),
			AccelY: 0.2 * math.Cos(tick/5),
			AccelZ: 9.8,
			GyroX:  math.Sin(tick / 10),
			GyroY:  math.Cos(tick / 10),
			MagX:   25 + math.Sin(tick/20),
			MagY:   -5,
			MagZ:   40,
		})
		_ = f.Emit(adapter.ChannelBattery, 12.6-math.Mod(tick/600, 1.6))
		temp := 25 + 10*math.Abs(math.Sin(tick/100))
		_ = f.Emit(adapter.ChannelTemperature, adapter.TemperatureFrame{Temperature: &temp})
		_ = f.Emit(adapter.ChannelPosition, adapter.PositionFrame{
			Lat:  10.7769 + 0.0001*math.Sin(tick/50),
			Lon:  106.7009 + 0.0001*math.Cos(tick/50),
			Sats: 9,
		})
	}
}

// Test helpers

// SetPorts replaces the enumerated ports.
func (f *FakeLink) SetPorts(ports ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = ports
}

// SetAckDelay delays Connect by d.
func (f *FakeLink) SetAckDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ackDelay = d
}

// SetErrorSimulation makes op fail with an error carrying errorType.
func (f *FakeLink) SetErrorSimulation(op, errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors[op] = errorType
}

// DisableErrorSimulation clears every simulated error.
func (f *FakeLink) DisableErrorSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.simulateErrors)
}

// FailRelease makes the release handle for ch return an error. The
// listener is still removed.
func (f *FakeLink) FailRelease(ch adapter.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRelease[ch] = true
}

// FailSubscribe makes Subscribe on ch fail.
func (f *FakeLink) FailSubscribe(ch adapter.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSubscribe[ch] = true
}

// ListenerCount returns the number of handlers across all channels.
func (f *FakeLink) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ls := range f.listeners {
		n += len(ls)
	}
	return n
}

// Connected reports whether the link is open.
func (f *FakeLink) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// StreamStarts returns how many times the stream was started this session.
func (f *FakeLink) StreamStarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming
}

// MotorCalls returns the motor commands received so far.
func (f *FakeLink) MotorCalls() []MotorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.motorCalls)
}

func (f *FakeLink) simulated(op string) error {
	f.mu.Lock()
	errorType, ok := f.simulateErrors[op]
	f.mu.Unlock()
	if !ok {
		return nil
	}

	switch errorType {
	case "REJECTED", "BUSY", "UNAVAILABLE", "TIMEOUT", "INTERNAL":
		return fmt.Errorf("%s: simulated %s failure", errorType, op)
	default:
		return fmt.Errorf("INTERNAL: unknown simulated error %q", errorType)
	}
}
