// Package auth verifies bearer tokens and enforces operator roles.
//
// Observers may read session state and subscribe to telemetry. Pilots may
// additionally connect, record, export and drive motor tests. With auth
// mode "none" every request runs as an anonymous pilot.
package auth
