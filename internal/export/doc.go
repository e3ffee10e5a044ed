// Package export writes point-in-time telemetry snapshots to JSON files.
//
// A snapshot is built from a single Aggregator.ExportState call, so the
// scalars, the latest inertial reading and every history in the document
// come from the same instant. Files are written to a temp file and renamed
// into place; a reader never sees a partial export.
package export
