package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
	"github.com/gioimtg2003/control-drone-first/internal/adapter/fake"
	"github.com/gioimtg2003/control-drone-first/internal/config"
	"github.com/gioimtg2003/control-drone-first/internal/recording"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

const testPort = "COM3"

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishType(eventType string, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, mutate func(*config.SessionConfig)) (*Manager, *fake.FakeLink) {
	t.Helper()
	cfg := config.LoadBaseline().Session
	if mutate != nil {
		mutate(&cfg)
	}
	link := fake.NewFakeLink(testPort, "COM4")
	m := NewManager(link, cfg)
	if _, err := m.ListPorts(context.Background()); err != nil {
		t.Fatalf("ListPorts failed: %v", err)
	}
	return m, link
}

func connect(t *testing.T, m *Manager) Info {
	t.Helper()
	info, err := m.Connect(context.Background(), testPort, 115200)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return info
}

func emitPosition(t *testing.T, link *fake.FakeLink, lat float64) {
	t.Helper()
	if err := link.Emit(adapter.ChannelPosition, adapter.PositionFrame{Lat: lat, Lon: 106.7, Sats: 8}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
}

func TestConnectSuccess(t *testing.T) {
	pub := &recordingPublisher{}
	cfg := config.LoadBaseline().Session
	link := fake.NewFakeLink(testPort)
	m := NewManager(link, cfg, WithPublisher(pub))
	_, _ = m.ListPorts(context.Background())

	info := connect(t, m)

	if info.State != Connected || m.State() != Connected {
		t.Errorf("state = %s / %s, want connected", info.State, m.State())
	}
	if info.SessionID == "" {
		t.Error("SessionID not assigned")
	}
	if info.Port != testPort || info.Baud != 115200 {
		t.Errorf("info = %+v", info)
	}
	if info.Listeners != adapter.NumChannels || link.ListenerCount() != adapter.NumChannels {
		t.Errorf("listeners = %d (link %d), want %d", info.Listeners, link.ListenerCount(), adapter.NumChannels)
	}
	if link.StreamStarts() != 1 {
		t.Errorf("StreamStarts() = %d, want 1", link.StreamStarts())
	}
	// connecting + connected
	if pub.count(telemetry.EventSession) != 2 {
		t.Errorf("session events = %d, want 2", pub.count(telemetry.EventSession))
	}
}

func TestConnectValidation(t *testing.T) {
	tests := []struct {
		name string
		port string
		baud int
		want error
	}{
		{"unknown port", "COM9", 115200, ErrInvalidPort},
		{"empty port", "", 115200, ErrInvalidPort},
		{"unsupported baud", testPort, 12345, ErrInvalidBaud},
		{"zero baud", testPort, 0, ErrInvalidBaud},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, link := newTestManager(t, nil)

			_, err := m.Connect(context.Background(), tt.port, tt.baud)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Connect() error = %v, want %v", err, tt.want)
			}
			if m.State() != Disconnected {
				t.Errorf("state = %s, want disconnected", m.State())
			}
			if link.Connected() {
				t.Error("link was contacted for an invalid request")
			}
		})
	}
}

func TestConnectRequiresEnumeration(t *testing.T) {
	m := NewManager(fake.NewFakeLink(testPort), config.LoadBaseline().Session)

	_, err := m.Connect(context.Background(), testPort, 115200)
	var portErr *InvalidPortError
	if !errors.As(err, &portErr) {
		t.Fatalf("Connect() error = %v, want InvalidPortError", err)
	}
}

func TestAllBaudRatesAccepted(t *testing.T) {
	for _, baud := range BaudRates {
		m, _ := newTestManager(t, nil)
		if _, err := m.Connect(context.Background(), testPort, baud); err != nil {
			t.Errorf("Connect(%d) failed: %v", baud, err)
		}
	}
}

func TestConnectRejectedByRemote(t *testing.T) {
	m, link := newTestManager(t, nil)
	link.SetErrorSimulation("Connect", "REJECTED")

	_, err := m.Connect(context.Background(), testPort, 115200)
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Connect() error = %v, want ErrConnect", err)
	}
	if !errors.Is(err, adapter.ErrRejected) {
		t.Errorf("Connect() error = %v, want REJECTED cause", err)
	}
	if m.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	if link.ListenerCount() != 0 {
		t.Errorf("ListenerCount() = %d, want 0", link.ListenerCount())
	}
}

func TestConnectAckTimeout(t *testing.T) {
	m, link := newTestManager(t, func(c *config.SessionConfig) {
		c.ConnectTimeout = 20 * time.Millisecond
	})
	link.SetAckDelay(time.Second)

	start := time.Now()
	_, err := m.Connect(context.Background(), testPort, 115200)
	if !errors.Is(err, ErrConnect) || !errors.Is(err, adapter.ErrTimeout) {
		t.Fatalf("Connect() error = %v, want CONNECT_FAILED/TIMEOUT", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Connect took %v, timeout not applied", elapsed)
	}
	if m.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
}

func TestConcurrentConnectIsBusy(t *testing.T) {
	m, link := newTestManager(t, nil)
	link.SetAckDelay(100 * time.Millisecond)

	first := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background(), testPort, 115200)
		first <- err
	}()

	deadline := time.Now().Add(time.Second)
	for m.State() != Connecting {
		if time.Now().After(deadline) {
			t.Fatal("manager never entered Connecting")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := m.Connect(context.Background(), "COM4", 9600)
	if !errors.Is(err, ErrSessionBusy) {
		t.Errorf("second Connect() error = %v, want SESSION_BUSY", err)
	}
	if err := m.Disconnect(context.Background()); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Disconnect() during connect error = %v, want SESSION_BUSY", err)
	}

	if err := <-first; err != nil {
		t.Fatalf("first Connect() failed: %v", err)
	}
	if info := m.Info(); info.State != Connected || info.Port != testPort {
		t.Errorf("info = %+v, want first request's session", info)
	}
}

func TestConnectWhileConnectedIsBusy(t *testing.T) {
	m, _ := newTestManager(t, nil)
	connect(t, m)

	var busy *SessionBusyError
	_, err := m.Connect(context.Background(), testPort, 115200)
	if !errors.As(err, &busy) || busy.State != Connected {
		t.Fatalf("Connect() error = %v, want SessionBusyError(connected)", err)
	}
}

func TestDisconnectWhenDisconnectedIsNoop(t *testing.T) {
	m, link := newTestManager(t, nil)

	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if len(link.MotorCalls()) != 0 || link.Connected() {
		t.Error("no-op disconnect touched the link")
	}
}

func TestDisconnectReleasesAllListeners(t *testing.T) {
	m, link := newTestManager(t, nil)
	connect(t, m)

	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if m.State() != Disconnected {
		t.Errorf("state = %s", m.State())
	}
	if link.ListenerCount() != 0 || m.Multiplexer().Active() != 0 {
		t.Errorf("listeners after disconnect: link %d, mux %d", link.ListenerCount(), m.Multiplexer().Active())
	}
	if link.Connected() {
		t.Error("remote session still open")
	}
	if m.SessionID() != "" {
		t.Errorf("SessionID() = %q after disconnect", m.SessionID())
	}
}

func TestDisconnectReleasesAllEvenWhenOneFails(t *testing.T) {
	m, link := newTestManager(t, nil)
	link.FailRelease(adapter.ChannelBattery)
	connect(t, m)

	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v, want nil", err)
	}
	if link.ListenerCount() != 0 {
		t.Errorf("ListenerCount() = %d, want 0", link.ListenerCount())
	}
	if m.State() != Disconnected {
		t.Errorf("state = %s", m.State())
	}
}

func TestRemoteDisconnectFailureSuppressed(t *testing.T) {
	m, link := newTestManager(t, nil)
	connect(t, m)
	link.SetErrorSimulation("Disconnect", "UNAVAILABLE")

	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v, want nil", err)
	}
	if m.State() != Disconnected || link.ListenerCount() != 0 {
		t.Errorf("state %s, listeners %d", m.State(), link.ListenerCount())
	}
}

func TestAttachFailureRollsBack(t *testing.T) {
	m, link := newTestManager(t, nil)
	link.FailSubscribe(adapter.ChannelPosition)

	_, err := m.Connect(context.Background(), testPort, 115200)
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) || subErr.Channel != adapter.ChannelPosition {
		t.Fatalf("Connect() error = %v, want SubscriptionError(position)", err)
	}
	if link.ListenerCount() != 0 {
		t.Errorf("ListenerCount() = %d, want 0", link.ListenerCount())
	}
	if link.Connected() {
		t.Error("remote session left open after attach failure")
	}
	if m.State() != Disconnected {
		t.Errorf("state = %s", m.State())
	}
}

func TestStreamStartFailureIsSubscriptionError(t *testing.T) {
	m, link := newTestManager(t, nil)
	link.SetErrorSimulation("StartTelemetryStream", "UNAVAILABLE")

	_, err := m.Connect(context.Background(), testPort, 115200)
	if !errors.Is(err, ErrSubscription) || !errors.Is(err, adapter.ErrUnavailable) {
		t.Fatalf("Connect() error = %v", err)
	}
	if link.ListenerCount() != 0 {
		t.Errorf("ListenerCount() = %d, want 0", link.ListenerCount())
	}
}

func TestRepeatedSessionsNeverLeakListeners(t *testing.T) {
	m, link := newTestManager(t, nil)
	link.FailRelease(adapter.ChannelTemperature)

	for i := 0; i < 20; i++ {
		connect(t, m)
		if link.ListenerCount() != adapter.NumChannels {
			t.Fatalf("cycle %d: %d listeners while connected", i, link.ListenerCount())
		}
		if err := m.Disconnect(context.Background()); err != nil {
			t.Fatalf("cycle %d: Disconnect failed: %v", i, err)
		}
		if link.ListenerCount() != 0 {
			t.Fatalf("cycle %d: %d listeners after disconnect", i, link.ListenerCount())
		}
	}
}

func TestRecordingScenario(t *testing.T) {
	m, link := newTestManager(t, nil)
	connect(t, m)

	if got := m.StartRecording(); got != recording.Recording {
		t.Fatalf("StartRecording() = %s", got)
	}
	for i := 1; i <= 5; i++ {
		emitPosition(t, link, float64(i))
	}
	m.StopRecording()
	for i := 6; i <= 8; i++ {
		emitPosition(t, link, float64(i))
	}

	log := m.Aggregator().ExportState().PositionLog
	if len(log) != 5 {
		t.Fatalf("len(PositionLog) = %d, want 5", len(log))
	}
	for i, e := range log {
		if e.ID != int64(i+1) || e.Latitude != float64(i+1) {
			t.Errorf("log[%d] = %+v", i, e)
		}
		if e.Accuracy != 8 {
			t.Errorf("log[%d].Accuracy = %v, want sats value 8", i, e.Accuracy)
		}
	}

	// Standby still tracks the live position.
	state := m.Aggregator().ExportState()
	if state.CurrentPosition == nil || state.CurrentPosition.Value.Latitude != 8 {
		t.Errorf("CurrentPosition = %+v, want latitude 8", state.CurrentPosition)
	}
}

func TestDisconnectResetsRecording(t *testing.T) {
	m, link := newTestManager(t, func(c *config.SessionConfig) { c.RetainHistory = true })
	connect(t, m)
	m.StartRecording()
	emitPosition(t, link, 1)
	emitPosition(t, link, 2)

	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.RecordingState() != recording.Standby {
		t.Errorf("RecordingState() = %s after disconnect", m.RecordingState())
	}

	connect(t, m)
	m.StartRecording()
	emitPosition(t, link, 3)

	if m.Recorded() != 1 {
		t.Errorf("Recorded() = %d, want 1 for the new session", m.Recorded())
	}

	log := m.Aggregator().ExportState().PositionLog
	if len(log) != 3 {
		t.Fatalf("len(log) = %d, want 3", len(log))
	}
	for i, e := range log {
		if e.ID != int64(i+1) {
			t.Errorf("log ids = %v, want retained entries then id 3", logIDs(log))
			break
		}
	}
}

func TestExportStateKeepsSessionIDAfterDisconnect(t *testing.T) {
	m, _ := newTestManager(t, nil)
	info := connect(t, m)

	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := m.Aggregator().ExportState().SessionID; got != info.SessionID {
		t.Errorf("SessionID after disconnect = %q, want %q", got, info.SessionID)
	}

	next := connect(t, m)
	if got := m.Aggregator().ExportState().SessionID; got != next.SessionID {
		t.Errorf("SessionID after reconnect = %q, want %q", got, next.SessionID)
	}
}

func logIDs(log []telemetry.PositionLogEntry) []int64 {
	ids := make([]int64, len(log))
	for i, e := range log {
		ids[i] = e.ID
	}
	return ids
}

func TestLinkLostTearsDownSession(t *testing.T) {
	pub := &recordingPublisher{}
	link := fake.NewFakeLink(testPort)
	m := NewManager(link, config.LoadBaseline().Session, WithPublisher(pub))
	_, _ = m.ListPorts(context.Background())

	var hookRan bool
	m.OnTeardown(func(context.Context) { hookRan = true })

	connect(t, m)
	m.LinkLost(errors.New("UNAVAILABLE: serial read: EOF"))

	if m.State() != Disconnected {
		t.Errorf("State() after link loss = %s, want disconnected", m.State())
	}
	if link.ListenerCount() != 0 {
		t.Errorf("listeners after link loss = %d, want 0", link.ListenerCount())
	}
	if !hookRan {
		t.Error("teardown hooks did not run")
	}
	if pub.count(telemetry.EventFault) != 1 {
		t.Errorf("fault events = %d, want 1", pub.count(telemetry.EventFault))
	}

	// A late report after teardown is ignored.
	m.LinkLost(errors.New("UNAVAILABLE: serial read: EOF"))
	if pub.count(telemetry.EventFault) != 1 {
		t.Errorf("fault events after second report = %d, want 1", pub.count(telemetry.EventFault))
	}
}

func TestReconnectHistoryPolicy(t *testing.T) {
	tests := []struct {
		name   string
		retain bool
		want   int
	}{
		{"clear on reconnect", false, 0},
		{"retain on reconnect", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, link := newTestManager(t, func(c *config.SessionConfig) { c.RetainHistory = tt.retain })
			connect(t, m)
			_ = link.Emit(adapter.ChannelInertialMagnetic, adapter.IMUFrame{AccelZ: 9.8})
			_ = m.Disconnect(context.Background())

			// History survives disconnect so it can still be exported.
			if n := len(m.Aggregator().ExportState().InertialHistory); n != 1 {
				t.Fatalf("inertial history after disconnect = %d, want 1", n)
			}

			connect(t, m)
			if n := len(m.Aggregator().ExportState().InertialHistory); n != tt.want {
				t.Errorf("inertial history after reconnect = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestTeardownHooksRunOnDisconnect(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var mu sync.Mutex
	var ran []string
	m.OnTeardown(func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("teardown context has no deadline")
		}
		mu.Lock()
		ran = append(ran, "a")
		mu.Unlock()
	})
	m.OnTeardown(func(context.Context) { panic("hook failure") })
	m.OnTeardown(func(context.Context) {
		mu.Lock()
		ran = append(ran, "b")
		mu.Unlock()
	})

	connect(t, m)
	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 2 {
		t.Errorf("hooks ran = %v, want a and b", ran)
	}
	if m.State() != Disconnected {
		t.Errorf("state = %s", m.State())
	}
}

func TestRequireConnected(t *testing.T) {
	m, _ := newTestManager(t, nil)

	err := m.RequireConnected("motor test")
	var nc *NotConnectedError
	if !errors.As(err, &nc) || nc.State != Disconnected {
		t.Fatalf("RequireConnected() = %v", err)
	}

	connect(t, m)
	if err := m.RequireConnected("motor test"); err != nil {
		t.Errorf("RequireConnected() while connected = %v", err)
	}
}

func TestInfoWhileDisconnected(t *testing.T) {
	m, _ := newTestManager(t, nil)

	info := m.Info()
	if info.State != Disconnected || info.SessionID != "" || info.ConnectedAt != nil || info.Port != "" {
		t.Errorf("Info() = %+v", info)
	}
	if info.Recording != recording.Standby {
		t.Errorf("Recording = %s", info.Recording)
	}
}

func TestListPortsNormalizesErrors(t *testing.T) {
	link := fake.NewFakeLink()
	link.SetErrorSimulation("ListPorts", "UNAVAILABLE")
	m := NewManager(link, config.LoadBaseline().Session)

	if _, err := m.ListPorts(context.Background()); !errors.Is(err, adapter.ErrUnavailable) {
		t.Errorf("ListPorts() error = %v, want UNAVAILABLE", err)
	}
}
