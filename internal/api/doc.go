// Package api serves the operator HTTP API under /api/v1.
//
// Every JSON response uses one envelope: result, data, code, message,
// details and correlationId. Request bodies are decoded strictly; unknown
// fields and trailing data are rejected. Live telemetry is served as
// server-sent events from the telemetry hub.
package api
