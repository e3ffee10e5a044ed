package command

import (
	"context"
	"errors"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/session"
)

// MotorPort defines the interface the API needs from the orchestrator.
type MotorPort interface {
	TestMotor(ctx context.Context, motor string, duration time.Duration, throttle int) (TestStatus, error)
	StopTest(ctx context.Context) error
	SetThrottle(ctx context.Context, percent int) error
	ActiveTest() (TestStatus, bool)
}

// Session is the part of the session manager the orchestrator needs.
type Session interface {
	RequireConnected(op string) error
	SessionID() string
	OnTeardown(fn session.TeardownFunc)
}

// AuditLogger writes audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action, sessionID string, params map[string]interface{}, err error, latency time.Duration)
}

// Publisher receives motor and fault events.
type Publisher interface {
	PublishType(eventType string, data map[string]interface{})
}

// Compile-time assertions
var (
	_ Session   = (*session.Manager)(nil)
	_ MotorPort = (*Orchestrator)(nil)
)

var (
	// ErrInvalidMotor indicates a motor id outside motor1..motor4 and "all".
	ErrInvalidMotor = errors.New("INVALID_MOTOR")

	// ErrInvalidDuration indicates a test duration outside ValidDurations.
	ErrInvalidDuration = errors.New("INVALID_DURATION")

	// ErrInvalidThrottle indicates a throttle outside 0..100.
	ErrInvalidThrottle = errors.New("INVALID_THROTTLE")

	// ErrTestInProgress indicates another motor test is running.
	ErrTestInProgress = errors.New("TEST_IN_PROGRESS")
)
