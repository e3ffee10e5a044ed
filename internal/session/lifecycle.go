package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
	"github.com/gioimtg2003/control-drone-first/internal/config"
	"github.com/gioimtg2003/control-drone-first/internal/recording"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

// TeardownFunc runs on every exit from Connected, before listeners are
// released. ctx carries the disconnect timeout.
type TeardownFunc func(ctx context.Context)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithPublisher sets where session, recording and sample events go.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// Manager owns the session state machine, the recording gate and the
// telemetry history for one vehicle link.
//
// m.mu is held only for state checks and field updates; link round trips
// run outside it while the state is Connecting or Disconnecting.
type Manager struct {
	link      adapter.Link
	agg       *telemetry.Aggregator
	gate      *recording.Gate
	mux       *Multiplexer
	cfg       config.SessionConfig
	logger    *slog.Logger
	publisher Publisher

	mu          sync.Mutex
	state       State
	port        string
	baud        int
	sessionID   string
	connectedAt time.Time
	knownPorts  []string
	teardown    []TeardownFunc
}

// NewManager creates a Manager in Disconnected with history buffers sized
// from cfg.
func NewManager(link adapter.Link, cfg config.SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		link:      link,
		cfg:       cfg,
		logger:    slog.Default(),
		publisher: nopPublisher{},
		state:     Disconnected,
		agg: telemetry.NewAggregator(telemetry.Capacities{
			Inertial:    cfg.InertialCapacity,
			Magnetic:    cfg.MagneticCapacity,
			Scalar:      cfg.ScalarCapacity,
			PositionLog: cfg.PositionLogCapacity,
		}),
		gate: recording.NewGate(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.mux = NewMultiplexer(link, m.agg, m.gate, m.publisher, m.logger)
	return m
}

// Aggregator returns the telemetry history.
func (m *Manager) Aggregator() *telemetry.Aggregator { return m.agg }

// Multiplexer returns the subscription multiplexer.
func (m *Manager) Multiplexer() *Multiplexer { return m.mux }

// ListPorts enumerates ports and remembers them for Connect validation.
func (m *Manager) ListPorts(ctx context.Context) ([]string, error) {
	ports, err := m.link.ListPorts(ctx)
	if err != nil {
		return nil, adapter.NormalizeLinkError(err, nil)
	}

	m.mu.Lock()
	m.knownPorts = slices.Clone(ports)
	m.mu.Unlock()
	return ports, nil
}

// Connect opens a session on port at baud. It fails fast unless the
// manager is Disconnected, and never leaves it anywhere but Connected or
// Disconnected.
func (m *Manager) Connect(ctx context.Context, port string, baud int) (Info, error) {
	m.mu.Lock()
	if m.state != Disconnected {
		err := &SessionBusyError{Op: "connect", State: m.state}
		m.mu.Unlock()
		return Info{}, err
	}
	if !slices.Contains(m.knownPorts, port) {
		err := &InvalidPortError{Port: port, Known: slices.Clone(m.knownPorts)}
		m.mu.Unlock()
		return Info{}, err
	}
	if !ValidBaud(baud) {
		m.mu.Unlock()
		return Info{}, &InvalidBaudError{Baud: baud}
	}
	m.state = Connecting
	m.port = port
	m.baud = baud
	m.mu.Unlock()
	m.publishState()

	start := time.Now()
	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	err := m.link.Connect(connectCtx, port, baud)
	cancel()
	if err != nil {
		m.resetToDisconnected()
		m.logger.Warn("connect failed", "port", port, "baud", baud, "error", err)
		return Info{}, &ConnectError{Port: port, Baud: baud, Err: adapter.NormalizeLinkError(err, nil)}
	}

	// A retained position log keeps its ids; the new session continues
	// numbering after the newest entry.
	if m.cfg.RetainHistory {
		m.gate.ResetFrom(m.agg.LastPositionID())
	} else {
		m.agg.Reset()
		m.gate.Reset()
	}

	attachCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	err = m.mux.Attach(attachCtx)
	cancel()
	if err != nil {
		m.remoteDisconnect(ctx)
		m.resetToDisconnected()
		m.logger.Warn("attach failed", "port", port, "error", err)
		return Info{}, err
	}

	m.mu.Lock()
	m.state = Connected
	m.sessionID = uuid.NewString()
	m.connectedAt = time.Now()
	info := m.infoLocked()
	m.mu.Unlock()
	m.agg.SetSessionID(info.SessionID)

	m.logger.Info("session connected",
		"session_id", info.SessionID, "port", port, "baud", baud,
		"latency_ms", time.Since(start).Milliseconds())
	m.publishState()
	return info, nil
}

// Disconnect ends the session. It is a no-op when Disconnected and fails
// with SessionBusyError during a transition. Listener release and remote
// disconnect failures are logged, never returned.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Disconnected:
		m.mu.Unlock()
		return nil
	case Connecting, Disconnecting:
		err := &SessionBusyError{Op: "disconnect", State: m.state}
		m.mu.Unlock()
		return err
	}
	m.state = Disconnecting
	sessionID := m.sessionID
	hooks := slices.Clone(m.teardown)
	m.mu.Unlock()
	m.publishState()

	m.runTeardown(ctx, hooks)

	if err := m.mux.Detach(); err != nil {
		m.logger.Warn("listener release failed", "session_id", sessionID, "error", err)
	}
	m.remoteDisconnect(ctx)
	m.gate.Reset()
	m.resetToDisconnected()

	m.logger.Info("session disconnected", "session_id", sessionID)
	return nil
}

// LinkLost handles a link that dropped underneath the session: it
// publishes a fault and tears down as an operator disconnect would.
// Outside Connected it only logs; a pending connect fails on its own.
func (m *Manager) LinkLost(err error) {
	m.mu.Lock()
	state, sessionID := m.state, m.sessionID
	m.mu.Unlock()

	m.logger.Warn("drone link lost", "session_id", sessionID, "state", state, "error", err)
	if state != Connected {
		return
	}

	m.publisher.PublishType(telemetry.EventFault, map[string]interface{}{
		"sessionId": sessionID,
		"code":      adapter.ErrUnavailable.Error(),
		"message":   "Drone link lost",
		"details":   err.Error(),
	})
	if err := m.Disconnect(context.Background()); err != nil {
		m.logger.Warn("teardown after link loss failed", "session_id", sessionID, "error", err)
	}
}

// OnTeardown registers fn to run on every exit from Connected.
func (m *Manager) OnTeardown(fn TeardownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown = append(m.teardown, fn)
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Info returns a description of the current session.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoLocked()
}

// SessionID returns the active session id, or "" outside a session.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// RequireConnected returns NotConnectedError unless Connected.
func (m *Manager) RequireConnected(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return &NotConnectedError{Op: op, State: m.state}
	}
	return nil
}

// StartRecording opens the recording gate.
func (m *Manager) StartRecording() recording.State {
	m.gate.Start()
	m.publishRecording()
	return m.gate.State()
}

// StopRecording closes the recording gate. Logged entries are kept.
func (m *Manager) StopRecording() recording.State {
	m.gate.Stop()
	m.publishRecording()
	return m.gate.State()
}

// RecordingState returns the gate state.
func (m *Manager) RecordingState() recording.State {
	return m.gate.State()
}

// Recorded returns how many positions were logged this session.
func (m *Manager) Recorded() int64 {
	return m.gate.Recorded()
}

func (m *Manager) infoLocked() Info {
	info := Info{
		State:     m.state,
		Recording: m.gate.State(),
		Listeners: m.mux.Active(),
	}
	if m.state != Disconnected {
		info.Port = m.port
		info.Baud = m.baud
	}
	if m.state == Connected || m.state == Disconnecting {
		info.SessionID = m.sessionID
		at := m.connectedAt
		info.ConnectedAt = &at
	}
	return info
}

func (m *Manager) resetToDisconnected() {
	m.mu.Lock()
	m.state = Disconnected
	m.sessionID = ""
	m.connectedAt = time.Time{}
	m.mu.Unlock()
	m.publishState()
}

// remoteDisconnect is best effort and survives a cancelled caller context.
func (m *Manager) remoteDisconnect(ctx context.Context) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.DisconnectTimeout)
	defer cancel()
	if err := m.link.Disconnect(dctx); err != nil {
		m.logger.Warn("remote disconnect failed", "error", adapter.NormalizeLinkError(err, nil))
	}
}

// runTeardown runs hooks concurrently and waits for all of them. A
// panicking hook is logged and does not stop the others.
func (m *Manager) runTeardown(ctx context.Context, hooks []TeardownFunc) {
	if len(hooks) == 0 {
		return
	}
	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.DisconnectTimeout)
	defer cancel()

	var wg conc.WaitGroup
	for _, hook := range hooks {
		wg.Go(func() { hook(hookCtx) })
	}
	if r := wg.WaitAndRecover(); r != nil {
		m.logger.Error("teardown hook panicked", "error", r.AsError())
	}
}

func (m *Manager) publishState() {
	info := m.Info()
	m.publisher.PublishType(telemetry.EventSession, map[string]interface{}{
		"state":     info.State,
		"port":      info.Port,
		"baud":      info.Baud,
		"sessionId": info.SessionID,
	})
}

func (m *Manager) publishRecording() {
	m.publisher.PublishType(telemetry.EventRecording, map[string]interface{}{
		"state":    m.gate.State(),
		"recorded": m.gate.Recorded(),
	})
}
