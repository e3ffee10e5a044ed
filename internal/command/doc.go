// Package command implements the motor test orchestrator.
//
// The orchestrator validates motor requests, requires a connected session,
// calls the link with the configured command timeout, publishes motor and
// fault events to the telemetry hub and writes audit records. A motor test
// runs as a cancellable task that stops the motors when its duration ends,
// when the operator cancels it, or when the session tears down.
package command
