// Package seriallink implements adapter.Link over a serial port.
//
// Frames are newline-delimited JSON. The ground station sends commands
// ({"cmd":"connect"}) and the vehicle answers each with an ack
// ({"ack":"connect","ok":true}). Telemetry arrives unsolicited as
// {"channel":"battery","payload":12.4}.
package seriallink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
)

const maxFrameSize = 64 * 1024

// Opener opens a serial device.
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

// Lister enumerates serial devices.
type Lister func() ([]string, error)

type command struct {
	Cmd        string `json:"cmd"`
	Motor      string `json:"motor,omitempty"`
	Throttle   *int   `json:"throttle,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

type frame struct {
	Ack     string          `json:"ack,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Channel adapter.Channel `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type listener struct {
	id      int
	handler adapter.Handler
}

// Option configures a Link.
type Option func(*Link)

// WithLogger sets the link logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// WithOpener replaces the device opener.
func WithOpener(open Opener) Option {
	return func(l *Link) { l.open = open }
}

// WithLinkLost sets fn to run when the device stops delivering frames
// while the link is open. fn runs on the reader goroutine after the reader
// has fully stopped, with an error matching adapter.ErrUnavailable.
func WithLinkLost(fn func(err error)) Option {
	return func(l *Link) { l.onLost = fn }
}

// WithLister replaces the device enumerator.
func WithLister(list Lister) Option {
	return func(l *Link) { l.list = list }
}

// Link is a serial-port adapter.Link.
type Link struct {
	open   Opener
	list   Lister
	onLost func(err error)
	logger *slog.Logger

	// cmdMu allows one command round trip at a time.
	cmdMu sync.Mutex

	mu           sync.Mutex
	port         io.ReadWriteCloser
	acks         chan frame
	readDone     chan struct{}
	listeners    map[adapter.Channel][]listener
	nextListener int
}

// New creates a Link that opens real serial devices.
func New(opts ...Option) *Link {
	l := &Link{
		open:      openSerial,
		list:      serial.GetPortsList,
		logger:    slog.Default(),
		listeners: make(map[adapter.Channel][]listener),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func openSerial(name string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, classifyPortError(err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, classifyPortError(err)
	}
	return port, nil
}

func classifyPortError(err error) error {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return err
	}
	switch portErr.Code() {
	case serial.PortNotFound, serial.PortBusy, serial.PermissionDenied:
		return fmt.Errorf("%w: %v", adapter.ErrUnavailable, err)
	case serial.InvalidSpeed:
		return fmt.Errorf("%w: %v", adapter.ErrRejected, err)
	default:
		return err
	}
}

// ListPorts enumerates serial devices.
func (l *Link) ListPorts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ports, err := l.list()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	slices.Sort(ports)
	return ports, nil
}

// Connect opens the device, starts the reader and waits for the connect ack.
func (l *Link) Connect(ctx context.Context, port string, baud int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.port != nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: link already open", adapter.ErrBusy)
	}
	l.mu.Unlock()

	rwc, err := l.open(port, baud)
	if err != nil {
		return err
	}

	acks := make(chan frame, 4)
	readDone := make(chan struct{})
	l.mu.Lock()
	l.port = rwc
	l.acks = acks
	l.readDone = readDone
	l.mu.Unlock()

	go l.readLoop(rwc, acks, readDone)

	if err := l.call(ctx, command{Cmd: "connect"}); err != nil {
		l.closePort()
		return err
	}
	l.logger.Info("serial link open", "port", port, "baud", baud)
	return nil
}

// Disconnect sends a best-effort disconnect command and closes the device.
func (l *Link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	open := l.port != nil
	l.mu.Unlock()
	if !open {
		return fmt.Errorf("%w: no connection is active", adapter.ErrUnavailable)
	}

	callErr := l.call(ctx, command{Cmd: "disconnect"})
	closeErr := l.closePort()
	return errors.Join(callErr, closeErr)
}

// StartTelemetryStream asks the vehicle to begin streaming.
func (l *Link) StartTelemetryStream(ctx context.Context) error {
	return l.call(ctx, command{Cmd: "stream"})
}

// Subscribe registers h for ch. Handlers run on the reader goroutine.
func (l *Link) Subscribe(ctx context.Context, ch adapter.Channel, h adapter.Handler) (adapter.Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ch.Index() < 0 {
		return nil, fmt.Errorf("%w: unknown channel %q", adapter.ErrRejected, ch)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextListener++
	id := l.nextListener
	l.listeners[ch] = append(l.listeners[ch], listener{id: id, handler: h})

	var once sync.Once
	return func() error {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.listeners[ch] = slices.DeleteFunc(l.listeners[ch], func(x listener) bool { return x.id == id })
		})
		return nil
	}, nil
}

// TestMotor runs a timed motor test on the vehicle.
func (l *Link) TestMotor(ctx context.Context, motor string, throttle int, duration time.Duration) error {
	return l.call(ctx, command{Cmd: "motor_test", Motor: motor, Throttle: &throttle, DurationMs: duration.Milliseconds()})
}

// SetThrottle sets the global throttle.
func (l *Link) SetThrottle(ctx context.Context, percent int) error {
	return l.call(ctx, command{Cmd: "throttle", Throttle: &percent})
}

// StopMotors stops every motor.
func (l *Link) StopMotors(ctx context.Context) error {
	return l.call(ctx, command{Cmd: "stop_motors"})
}

// call writes cmd and waits for its ack.
func (l *Link) call(ctx context.Context, cmd command) error {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	l.mu.Lock()
	port, acks, readDone := l.port, l.acks, l.readDone
	l.mu.Unlock()
	if port == nil {
		return fmt.Errorf("%w: %s without an open link", adapter.ErrUnavailable, cmd.Cmd)
	}

	// Drop acks left over from a previous call that timed out.
	for drained := false; !drained; {
		select {
		case <-acks:
		default:
			drained = true
		}
	}

	line, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Cmd, err)
	}
	if _, err := port.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: write %s: %v", adapter.ErrUnavailable, cmd.Cmd, err)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", adapter.ErrTimeout, cmd.Cmd, ctx.Err())
		case <-readDone:
			return fmt.Errorf("%w: link closed waiting for %s ack", adapter.ErrUnavailable, cmd.Cmd)
		case ack := <-acks:
			if ack.Ack != cmd.Cmd {
				l.logger.Debug("ignoring stale ack", "want", cmd.Cmd, "got", ack.Ack)
				continue
			}
			if !ack.OK {
				return adapter.NormalizeLinkError(errors.New(ack.Error), map[string]interface{}{"cmd": cmd.Cmd})
			}
			return nil
		}
	}
}

// readLoop handles frames until the device read fails. Lines longer than
// maxFrameSize are line noise: they are skipped up to the next newline.
func (l *Link) readLoop(rwc io.ReadWriteCloser, acks chan<- frame, done chan<- struct{}) {
	reader := bufio.NewReaderSize(rwc, maxFrameSize)
	var err error
	for {
		var line []byte
		line, err = reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			l.logger.Warn("dropping oversized frame", "limit_bytes", maxFrameSize)
			if err = skipLine(reader); err != nil {
				break
			}
			continue
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			l.handleFrame(line, acks)
		}
		if err != nil {
			break
		}
	}
	close(done)

	l.mu.Lock()
	lost := l.port == rwc
	l.mu.Unlock()
	if !lost {
		l.logger.Debug("serial reader stopped", "error", err)
		return
	}

	l.logger.Warn("serial link lost", "error", err)
	if l.onLost != nil {
		l.onLost(fmt.Errorf("%w: serial read: %v", adapter.ErrUnavailable, err))
	}
}

// skipLine discards input through the next newline.
func skipLine(reader *bufio.Reader) error {
	for {
		_, err := reader.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

func (l *Link) handleFrame(line []byte, acks chan<- frame) {
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		l.logger.Debug("dropping malformed frame", "error", err)
		return
	}

	if f.Ack != "" {
		select {
		case acks <- f:
		default:
			l.logger.Warn("ack queue full, dropping ack", "ack", f.Ack)
		}
		return
	}
	l.dispatch(adapter.Event{Channel: f.Channel, Payload: f.Payload, ReceivedAt: time.Now()})
}

func (l *Link) dispatch(event adapter.Event) {
	l.mu.Lock()
	handlers := make([]adapter.Handler, 0, len(l.listeners[event.Channel]))
	for _, x := range l.listeners[event.Channel] {
		handlers = append(handlers, x.handler)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

func (l *Link) closePort() error {
	l.mu.Lock()
	port, readDone := l.port, l.readDone
	l.port = nil
	l.mu.Unlock()
	if port == nil {
		return nil
	}

	err := port.Close()
	<-readDone
	return err
}
