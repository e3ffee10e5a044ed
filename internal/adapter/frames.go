package adapter

// Wire payloads carried in Event.Payload, one per channel. Battery events
// carry a bare JSON number (volts).

// IMUFrame is the inertial-magnetic payload.
type IMUFrame struct {
	AccelX float64 `json:"accelX"`
	AccelY float64 `json:"accelY"`
	AccelZ float64 `json:"accelZ"`
	GyroX  float64 `json:"gyroX"`
	GyroY  float64 `json:"gyroY"`
	GyroZ  float64 `json:"gyroZ"`
	MagX   float64 `json:"magX"`
	MagY   float64 `json:"magY"`
	MagZ   float64 `json:"magZ"`
}

// PositionFrame is the position payload. Sats is reported as the fix
// accuracy figure.
type PositionFrame struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Sats float64 `json:"sats"`
}

// TemperatureFrame is the temperature payload.
type TemperatureFrame struct {
	Temperature *float64 `json:"temperature,omitempty"`
}
