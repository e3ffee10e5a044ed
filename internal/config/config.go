package config

import (
	"time"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Motor     MotorConfig     `yaml:"motor"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Export    ExportConfig    `yaml:"export"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// SessionConfig controls the connection lifecycle and history buffers.
type SessionConfig struct {
	// Link selects the drone link implementation: "serial" or "fake".
	Link string `yaml:"link"`

	// ConnectTimeout bounds the wait for the remote connect acknowledgment.
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	// DisconnectTimeout bounds the remote disconnect round trip during teardown.
	DisconnectTimeout time.Duration `yaml:"disconnectTimeout"`

	// RetainHistory keeps buffers and the position log across reconnects.
	RetainHistory bool `yaml:"retainHistory"`

	InertialCapacity    int `yaml:"inertialCapacity"`
	MagneticCapacity    int `yaml:"magneticCapacity"`
	ScalarCapacity      int `yaml:"scalarCapacity"`
	PositionLogCapacity int `yaml:"positionLogCapacity"`
}

// MotorConfig holds motor command settings.
type MotorConfig struct {
	CommandTimeout time.Duration `yaml:"commandTimeout"`
}

// TelemetryConfig holds live telemetry stream settings.
type TelemetryConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter   time.Duration `yaml:"heartbeatJitter"`
	EventBufferSize   int           `yaml:"eventBufferSize"`
	ClientQueueSize   int           `yaml:"clientQueueSize"`
}

// ExportConfig holds snapshot export settings.
type ExportConfig struct {
	Dir string `yaml:"dir"`

	// ArchivePath is the SQLite database that records every export. Empty disables it.
	ArchivePath string `yaml:"archivePath"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// LogConfig holds service log settings. An empty File logs to stderr.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
}

// AuthConfig selects bearer token verification.
type AuthConfig struct {
	// Mode is "none", "hs256" or "rs256".
	Mode          string `yaml:"mode"`
	Secret        string `yaml:"secret"`
	PublicKeyFile string `yaml:"publicKeyFile"`
}

// Supported link implementations.
const (
	LinkSerial = "serial"
	LinkFake   = "fake"
)

// Supported auth modes.
const (
	AuthNone  = "none"
	AuthHS256 = "hs256"
	AuthRS256 = "rs256"
)

// LoadBaseline returns the built-in defaults.
func LoadBaseline() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Session: SessionConfig{
			Link:                LinkSerial,
			ConnectTimeout:      5 * time.Second,
			DisconnectTimeout:   3 * time.Second,
			RetainHistory:       false,
			InertialCapacity:    30,
			MagneticCapacity:    30,
			ScalarCapacity:      30,
			PositionLogCapacity: 100,
		},
		Motor: MotorConfig{
			CommandTimeout: 2 * time.Second,
		},
		Telemetry: TelemetryConfig{
			HeartbeatInterval: 15 * time.Second,
			HeartbeatJitter:   2 * time.Second,
			EventBufferSize:   50,
			ClientQueueSize:   100,
		},
		Export: ExportConfig{
			Dir:         "exports",
			ArchivePath: "",
		},
		Audit: AuditConfig{
			Dir:        "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Log: LogConfig{
			Level:      "INFO",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
		Auth: AuthConfig{
			Mode: AuthNone,
		},
	}
}
