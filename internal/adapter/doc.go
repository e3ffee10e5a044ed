// Package adapter defines the Link contract between the ground station and
// the vehicle.
//
// A Link enumerates serial ports, opens a session at a baud rate, and
// delivers telemetry as per-channel events to subscribed handlers. Motor
// commands are opaque remote calls. Errors returned by a Link are
// normalized to a small set of codes by NormalizeLinkError.
package adapter
