package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
	"github.com/gioimtg2003/control-drone-first/internal/recording"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

// Publisher receives live events. *telemetry.Hub implements it.
type Publisher interface {
	PublishType(eventType string, data map[string]interface{})
}

type nopPublisher struct{}

func (nopPublisher) PublishType(string, map[string]interface{}) {}

// attachment is one attach/detach cycle. Handlers registered during the
// cycle close over it, so events from a released listener are dropped even
// if the link delivers them late.
type attachment struct {
	detached atomic.Bool
	handles  [adapter.NumChannels]adapter.Release
}

// MuxStats counts ingestion outcomes since construction.
type MuxStats struct {
	Active       int   `json:"active"`
	Events       int64 `json:"events"`
	Dropped      int64 `json:"dropped"`
	DecodeErrors int64 `json:"decodeErrors"`
}

// Multiplexer subscribes to every telemetry channel for one session and
// funnels events into the aggregator through a single ingestion path.
type Multiplexer struct {
	link      adapter.Link
	agg       *telemetry.Aggregator
	gate      *recording.Gate
	publisher Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	current *attachment

	// ingestMu makes the aggregator single-writer.
	ingestMu sync.Mutex

	events       atomic.Int64
	dropped      atomic.Int64
	decodeErrors atomic.Int64
}

// NewMultiplexer wires link events to agg, passing positions through gate.
func NewMultiplexer(link adapter.Link, agg *telemetry.Aggregator, gate *recording.Gate, publisher Publisher, logger *slog.Logger) *Multiplexer {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		link:      link,
		agg:       agg,
		gate:      gate,
		publisher: publisher,
		logger:    logger,
	}
}

// Attach subscribes once to each channel and starts the telemetry stream.
// On failure every listener already attached is released.
func (m *Multiplexer) Attach(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return &SubscriptionError{Err: errors.New("already attached")}
	}

	att := &attachment{}
	for i, ch := range adapter.Channels {
		release, err := m.link.Subscribe(ctx, ch, m.handler(att))
		if err != nil {
			if relErr := m.release(att); relErr != nil {
				m.logger.Warn("release after failed attach", "error", relErr)
			}
			return &SubscriptionError{Channel: ch, Err: adapter.NormalizeLinkError(err, nil)}
		}
		att.handles[i] = release
	}

	if err := m.link.StartTelemetryStream(ctx); err != nil {
		if relErr := m.release(att); relErr != nil {
			m.logger.Warn("release after failed stream start", "error", relErr)
		}
		return &SubscriptionError{Err: adapter.NormalizeLinkError(err, nil)}
	}

	m.current = att
	m.logger.Debug("telemetry listeners attached", "channels", adapter.NumChannels)
	return nil
}

// Detach releases every listener of the current attachment exactly once.
// It always completes; release failures are joined into the result.
// Detach without a current attachment is a no-op.
func (m *Multiplexer) Detach() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	att := m.current
	if att == nil {
		return nil
	}
	m.current = nil
	return m.release(att)
}

// release marks att detached, waits out any in-flight ingestion, then
// calls every handle. Caller must hold m.mu.
func (m *Multiplexer) release(att *attachment) error {
	att.detached.Store(true)
	// Wait out handlers that passed the detached check before the store.
	m.ingestMu.Lock()
	m.ingestMu.Unlock()

	var errs []error
	for i, release := range att.handles {
		if release == nil {
			continue
		}
		att.handles[i] = nil
		if err := release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", adapter.Channels[i], err))
		}
	}
	return errors.Join(errs...)
}

// Active returns the number of attached listeners.
func (m *Multiplexer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return 0
	}
	n := 0
	for _, h := range m.current.handles {
		if h != nil {
			n++
		}
	}
	return n
}

// Stats returns ingestion counters.
func (m *Multiplexer) Stats() MuxStats {
	return MuxStats{
		Active:       m.Active(),
		Events:       m.events.Load(),
		Dropped:      m.dropped.Load(),
		DecodeErrors: m.decodeErrors.Load(),
	}
}

func (m *Multiplexer) handler(att *attachment) adapter.Handler {
	return func(event adapter.Event) {
		if att.detached.Load() {
			m.dropped.Add(1)
			return
		}

		samples, err := Decode(event)
		if err != nil {
			m.decodeErrors.Add(1)
			m.logger.Debug("dropping undecodable event", "channel", event.Channel, "error", err)
			return
		}

		m.ingestMu.Lock()
		defer m.ingestMu.Unlock()
		if att.detached.Load() {
			m.dropped.Add(1)
			return
		}
		m.events.Add(1)
		m.ingest(event.Channel, samples)
	}
}

// ingest records samples and logs admitted positions. Caller must hold
// m.ingestMu.
func (m *Multiplexer) ingest(ch adapter.Channel, samples []telemetry.Sample) {
	for _, s := range samples {
		if err := m.agg.Record(s); err != nil {
			m.logger.Warn("sample not recorded", "kind", s.Kind(), "error", err)
			continue
		}

		entry, ok := m.gate.Admit(s)
		if !ok {
			continue
		}
		m.agg.LogPosition(entry)
		m.publisher.PublishType(telemetry.EventRecording, map[string]interface{}{
			"entry": entry,
		})
	}

	m.publisher.PublishType(telemetry.EventSample, map[string]interface{}{
		"channel": ch,
		"samples": samples,
	})
}
