// Package recording gates admission of position samples into the
// position log.
package recording

import (
	"sync"

	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

// State is the recording gate state.
type State string

const (
	Standby   State = "standby"
	Recording State = "recording"
)

// Gate admits position samples while Recording and numbers them 1, 2, 3...
// Stopping keeps the counter; only Reset and ResetFrom move it.
type Gate struct {
	mu       sync.Mutex
	state    State
	nextID   int64
	recorded int64
}

// NewGate returns a gate in Standby.
func NewGate() *Gate {
	return &Gate{state: Standby, nextID: 1}
}

// Start begins admitting samples. Starting while Recording is a no-op.
func (g *Gate) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Recording
}

// Stop stops admitting samples. Entries already admitted are kept.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Standby
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Recorded returns how many entries have been admitted since the last reset.
func (g *Gate) Recorded() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recorded
}

// Reset returns to Standby and rewinds the id counter.
func (g *Gate) Reset() {
	g.ResetFrom(0)
}

// ResetFrom returns to Standby and numbers the next admitted entry
// lastID+1, so ids stay unique across sessions sharing one position log.
func (g *Gate) ResetFrom(lastID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Standby
	g.nextID = lastID + 1
	g.recorded = 0
}

// Admit turns a position sample into a log entry when Recording.
// Non-position samples and samples seen in Standby are never admitted.
func (g *Gate) Admit(s telemetry.Sample) (telemetry.PositionLogEntry, bool) {
	pos, ok := s.Payload().(telemetry.Position)
	if !ok {
		return telemetry.PositionLogEntry{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Recording {
		return telemetry.PositionLogEntry{}, false
	}

	entry := telemetry.PositionLogEntry{
		ID:         g.nextID,
		Timestamp:  s.CapturedAt().Format(telemetry.LogTimeFormat),
		CapturedAt: s.CapturedAt(),
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Accuracy:   pos.Accuracy,
	}
	g.nextID++
	g.recorded++
	return entry, true
}
