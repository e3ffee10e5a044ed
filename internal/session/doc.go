// Package session owns the connection lifecycle to the vehicle and the
// telemetry subscriptions that live for the duration of one session.
//
// A Manager is constructed once per process and passed to whatever needs
// it. It allows at most one session at a time and never queues operator
// requests: a request that arrives while a transition is in flight fails
// with SessionBusyError. On every successful connect the Multiplexer
// subscribes once to each telemetry channel; on every exit from Connected
// it releases all of them, even when some releases fail.
package session
