package session

import (
	"slices"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/recording"
)

// State is the connection lifecycle state.
type State string

const (
	Disconnected  State = "disconnected"
	Connecting    State = "connecting"
	Connected     State = "connected"
	Disconnecting State = "disconnecting"
)

// BaudRates lists the accepted serial baud rates.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// ValidBaud reports whether baud is an accepted rate.
func ValidBaud(baud int) bool {
	return slices.Contains(BaudRates, baud)
}

// Info describes the current session.
type Info struct {
	State       State           `json:"state"`
	Port        string          `json:"port,omitempty"`
	Baud        int             `json:"baud,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	ConnectedAt *time.Time      `json:"connectedAt,omitempty"`
	Recording   recording.State `json:"recording"`
	Listeners   int             `json:"listeners"`
}
