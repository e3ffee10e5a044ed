package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/gioimtg2003/control-drone-first/internal/config"
)

// Event types published on the live stream.
const (
	EventReady     = "ready"
	EventHeartbeat = "heartbeat"
	EventSample    = "telemetry"
	EventSession   = "session"
	EventRecording = "recording"
	EventMotor     = "motor"
	EventExport    = "export"
	EventFault     = "fault"
)

// Event represents a live event with SSE formatting.
type Event struct {
	ID   int64                  `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Client represents an SSE client connection.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Events  chan Event
	mu      sync.Mutex // Protect Writer access
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithReadySnapshot sets the provider for the snapshot sent in the ready event.
func WithReadySnapshot(fn func() map[string]interface{}) HubOption {
	return func(h *Hub) {
		h.snapshot = fn
	}
}

// Hub fans live events out to SSE clients and keeps a replay buffer.
//
// LOCK ORDERING: h.mu before Client.mu. The replay buffer has its own lock
// and is never held while taking h.mu.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	nextID atomic.Int64
	replay *ChannelBuffer[Event]

	config   config.TelemetryConfig
	logger   *slog.Logger
	snapshot func() map[string]interface{}

	heartbeatStop chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       conc.WaitGroup
}

// NewHub creates a new telemetry hub with the specified configuration.
func NewHub(cfg config.TelemetryConfig, opts ...HubOption) *Hub {
	hub := &Hub{
		clients: make(map[string]*Client),
		replay:  NewChannelBuffer[Event](cfg.EventBufferSize),
		config:  cfg,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub
}

// Subscribe serves one SSE client until its context ends. A Last-Event-ID
// header replays buffered events newer than that id.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	select {
	case <-h.done:
		return fmt.Errorf("telemetry hub stopped")
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	queue := h.config.ClientQueueSize
	if queue <= 0 {
		queue = 100
	}
	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Events:  make(chan Event, queue),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	if len(h.clients) == 1 && h.heartbeatStop == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()
	defer h.unregisterClient(client)

	if err := h.sendEventToClient(client, h.readyEvent()); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	if lastEventID > 0 {
		for _, event := range h.replay.Filter(func(e Event) bool { return e.ID > lastEventID }) {
			if err := h.sendEventToClient(client, event); err != nil {
				return fmt.Errorf("failed to replay events: %w", err)
			}
		}
	}

	h.logger.Debug("telemetry client subscribed", "client_id", client.ID, "last_event_id", lastEventID)
	h.handleClient(client)
	return nil
}

// Publish assigns an id, buffers the event for replay and queues it for
// every client. Slow clients drop events rather than block the caller.
func (h *Hub) Publish(event Event) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if event.ID == 0 {
		event.ID = h.nextID.Add(1)
	}
	if event.Type != EventHeartbeat {
		h.replay.Push(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case <-client.Context.Done():
		case client.Events <- event:
		default:
			h.logger.Warn("dropping event for slow client", "client_id", client.ID, "event_id", event.ID)
		}
	}

	return nil
}

// PublishType is a convenience wrapper for Publish.
func (h *Hub) PublishType(eventType string, data map[string]interface{}) {
	_ = h.Publish(Event{Type: eventType, Data: data})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readyEvent builds the initial event sent to each client.
func (h *Hub) readyEvent() Event {
	snapshot := map[string]interface{}{}
	if h.snapshot != nil {
		snapshot = h.snapshot()
	}
	return Event{
		ID:   h.nextID.Load(),
		Type: EventReady,
		Data: map[string]interface{}{"snapshot": snapshot},
	}
}

// sendEventToClient sends a single event to a client via SSE.
func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// handleClient delivers queued events until the client goes away.
func (h *Hub) handleClient(client *Client) {
	for {
		select {
		case <-client.Context.Done():
			return
		case <-h.done:
			return
		case event := <-client.Events:
			if err := h.sendEventToClient(client, event); err != nil {
				h.logger.Debug("telemetry client write failed", "client_id", client.ID, "error", err)
				return
			}
		}
	}
}

// unregisterClient removes a client and stops the heartbeat when none remain.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.Cancel()
	if _, exists := h.clients[client.ID]; !exists {
		return
	}
	delete(h.clients, client.ID)

	if len(h.clients) == 0 && h.heartbeatStop != nil {
		close(h.heartbeatStop)
		h.heartbeatStop = nil
	}
}

// startHeartbeat starts the heartbeat loop. Caller must hold h.mu.
func (h *Hub) startHeartbeat() {
	interval := h.config.HeartbeatInterval + h.config.HeartbeatJitter/2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	stop := make(chan struct{})
	h.heartbeatStop = stop

	h.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.PublishType(EventHeartbeat, map[string]interface{}{
					"ts": time.Now().UTC().Format(time.RFC3339),
				})
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	})
}

// Stop cancels every client and waits for the heartbeat loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.Cancel()
		}
		h.heartbeatStop = nil
		h.mu.Unlock()

		h.wg.Wait()
	})
}
