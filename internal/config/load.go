package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the YAML config path.
const EnvConfigPath = "GCS_CONFIG"

// Load merges LoadBaseline() + optional YAML file + GCS_* env overrides and validates the result.
// An empty path falls back to GCS_CONFIG, then to ./groundctl.yaml when present.
func Load(path string) (*Config, error) {
	config := LoadBaseline()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	explicit := path != ""
	if path == "" {
		path = "groundctl.yaml"
	}

	if err := loadFromFile(path, config); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile decodes a YAML file over the existing values. Keys absent
// from the file keep their current value.
func loadFromFile(filename string, config *Config) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("failed to decode yaml: %w", err)
	}
	return nil
}

// applyEnvOverrides applies GCS_* environment variables to the config.
// Malformed values are reported rather than silently ignored.
func applyEnvOverrides(config *Config) error {
	var errs []error

	str := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	dur := func(key string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	// Server
	str("GCS_ADDR", &config.Server.Addr)
	dur("GCS_SERVER_READ_TIMEOUT", &config.Server.ReadTimeout)
	dur("GCS_SERVER_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	dur("GCS_SERVER_IDLE_TIMEOUT", &config.Server.IdleTimeout)

	// Session
	str("GCS_SESSION_LINK", &config.Session.Link)
	dur("GCS_SESSION_CONNECT_TIMEOUT", &config.Session.ConnectTimeout)
	dur("GCS_SESSION_DISCONNECT_TIMEOUT", &config.Session.DisconnectTimeout)
	flag("GCS_SESSION_RETAIN_HISTORY", &config.Session.RetainHistory)
	num("GCS_SESSION_INERTIAL_CAPACITY", &config.Session.InertialCapacity)
	num("GCS_SESSION_MAGNETIC_CAPACITY", &config.Session.MagneticCapacity)
	num("GCS_SESSION_SCALAR_CAPACITY", &config.Session.ScalarCapacity)
	num("GCS_SESSION_POSITION_LOG_CAPACITY", &config.Session.PositionLogCapacity)

	// Motor
	dur("GCS_MOTOR_COMMAND_TIMEOUT", &config.Motor.CommandTimeout)

	// Telemetry stream
	dur("GCS_TELEMETRY_HEARTBEAT_INTERVAL", &config.Telemetry.HeartbeatInterval)
	dur("GCS_TELEMETRY_HEARTBEAT_JITTER", &config.Telemetry.HeartbeatJitter)
	num("GCS_TELEMETRY_EVENT_BUFFER_SIZE", &config.Telemetry.EventBufferSize)
	num("GCS_TELEMETRY_CLIENT_QUEUE_SIZE", &config.Telemetry.ClientQueueSize)

	// Export
	str("GCS_EXPORT_DIR", &config.Export.Dir)
	str("GCS_EXPORT_ARCHIVE", &config.Export.ArchivePath)

	// Audit
	str("GCS_AUDIT_DIR", &config.Audit.Dir)
	num("GCS_AUDIT_MAX_SIZE_MB", &config.Audit.MaxSizeMB)
	num("GCS_AUDIT_MAX_BACKUPS", &config.Audit.MaxBackups)
	num("GCS_AUDIT_MAX_AGE_DAYS", &config.Audit.MaxAgeDays)

	// Logging
	str("GCS_LOG_LEVEL", &config.Log.Level)
	str("GCS_LOG_FILE", &config.Log.File)

	// Auth
	str("GCS_AUTH_MODE", &config.Auth.Mode)
	str("GCS_AUTH_SECRET", &config.Auth.Secret)
	str("GCS_AUTH_PUBLIC_KEY_FILE", &config.Auth.PublicKeyFile)
	config.Auth.Mode = strings.ToLower(config.Auth.Mode)

	return errors.Join(errs...)
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns the value of an environment variable as a duration with a default.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvInt returns the value of an environment variable as an int with a default.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// GetEnvBool returns the value of an environment variable as a bool with a default.
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
