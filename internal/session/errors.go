package session

import (
	"errors"
	"fmt"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
)

// Session error codes. Typed errors below match these with errors.Is.
var (
	ErrSessionBusy  = errors.New("SESSION_BUSY")
	ErrNotConnected = errors.New("NOT_CONNECTED")
	ErrInvalidPort  = errors.New("INVALID_PORT")
	ErrInvalidBaud  = errors.New("INVALID_BAUD")
	ErrConnect      = errors.New("CONNECT_FAILED")
	ErrSubscription = errors.New("SUBSCRIPTION_FAILED")
)

// SessionBusyError rejects an operation while a transition is in flight
// or a session is already active.
type SessionBusyError struct {
	Op    string
	State State
}

func (e *SessionBusyError) Error() string {
	return fmt.Sprintf("%v: cannot %s while %s", ErrSessionBusy, e.Op, e.State)
}

func (e *SessionBusyError) Is(target error) bool { return target == ErrSessionBusy }

// NotConnectedError rejects an operation that needs a live session.
type NotConnectedError struct {
	Op    string
	State State
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%v: %s requires a connected session (state %s)", ErrNotConnected, e.Op, e.State)
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// InvalidPortError rejects a port missing from the last enumeration.
type InvalidPortError struct {
	Port  string
	Known []string
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("%v: %q not in enumerated ports %v", ErrInvalidPort, e.Port, e.Known)
}

func (e *InvalidPortError) Is(target error) bool { return target == ErrInvalidPort }

// InvalidBaudError rejects a baud rate outside BaudRates.
type InvalidBaudError struct {
	Baud int
}

func (e *InvalidBaudError) Error() string {
	return fmt.Sprintf("%v: %d not in %v", ErrInvalidBaud, e.Baud, BaudRates)
}

func (e *InvalidBaudError) Is(target error) bool { return target == ErrInvalidBaud }

// ConnectError reports a remote rejection or ack timeout. Err is a
// normalized *adapter.LinkError.
type ConnectError struct {
	Port string
	Baud int
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%v: %s@%d: %v", ErrConnect, e.Port, e.Baud, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

// SubscriptionError reports a failed attach. Channel is empty when the
// stream start request failed.
type SubscriptionError struct {
	Channel adapter.Channel
	Err     error
}

func (e *SubscriptionError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("%v: start telemetry stream: %v", ErrSubscription, e.Err)
	}
	return fmt.Sprintf("%v: channel %s: %v", ErrSubscription, e.Channel, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

func (e *SubscriptionError) Is(target error) bool { return target == ErrSubscription }
