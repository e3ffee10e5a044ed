package storage

import (
	_ "embed"
)

const (
	insertExportSQL = `
INSERT INTO exports (file_name,
                     session_id,
                     exported_at,
                     size_bytes,
                     battery_voltage,
                     temperature,
                     positions)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertPositionSQL = `
INSERT INTO position_log (export_id,
                          entry_id,
                          timestamp,
                          captured_at,
                          latitude,
                          longitude,
                          accuracy)
VALUES `

	selectExportsSQL = `
SELECT 
    id, 
    file_name, 
    session_id, 
    exported_at, 
    size_bytes, 
    battery_voltage, 
    temperature, 
    positions 
FROM exports 
ORDER BY exported_at DESC, id DESC
LIMIT ?`

	selectPositionLogSQL = `
SELECT 
    entry_id, 
    timestamp, 
    captured_at, 
    latitude, 
    longitude, 
    accuracy 
FROM position_log 
WHERE 
    export_id = ? 
ORDER BY entry_id`
)

//go:embed schema.sql
var schemaSQL string
