package config

import (
	"fmt"
	"strings"
)

// Validate enforces structural rules on a merged configuration.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := validateSession(&config.Session); err != nil {
		return fmt.Errorf("session validation failed: %w", err)
	}

	if config.Motor.CommandTimeout <= 0 {
		return fmt.Errorf("motor validation failed: command timeout must be positive, got %v", config.Motor.CommandTimeout)
	}

	if err := validateTelemetry(&config.Telemetry); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}

	if strings.TrimSpace(config.Export.Dir) == "" {
		return fmt.Errorf("export validation failed: directory must be set")
	}

	if err := validateAuth(&config.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("addr must be set")
	}
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 || s.IdleTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive, got read=%v write=%v idle=%v", s.ReadTimeout, s.WriteTimeout, s.IdleTimeout)
	}
	return nil
}

func validateSession(s *SessionConfig) error {
	switch s.Link {
	case LinkSerial, LinkFake:
	default:
		return fmt.Errorf("unknown link %q", s.Link)
	}

	// An unbounded Connecting state is never allowed.
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got %v", s.ConnectTimeout)
	}
	if s.DisconnectTimeout <= 0 {
		return fmt.Errorf("disconnect timeout must be positive, got %v", s.DisconnectTimeout)
	}

	capacities := map[string]int{
		"inertial":     s.InertialCapacity,
		"magnetic":     s.MagneticCapacity,
		"scalar":       s.ScalarCapacity,
		"position log": s.PositionLogCapacity,
	}
	for name, c := range capacities {
		if c <= 0 {
			return fmt.Errorf("%s capacity must be positive, got %d", name, c)
		}
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) error {
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval)
	}
	if t.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", t.HeartbeatJitter)
	}
	if t.HeartbeatJitter > t.HeartbeatInterval/2 {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", t.HeartbeatJitter, t.HeartbeatInterval)
	}
	if t.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", t.EventBufferSize)
	}
	if t.ClientQueueSize <= 0 {
		return fmt.Errorf("client queue size must be positive, got %d", t.ClientQueueSize)
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	switch a.Mode {
	case AuthNone:
	case AuthHS256:
		if a.Secret == "" {
			return fmt.Errorf("hs256 requires a secret")
		}
	case AuthRS256:
		if a.PublicKeyFile == "" {
			return fmt.Errorf("rs256 requires a public key file")
		}
	default:
		return fmt.Errorf("unsupported auth mode %q", a.Mode)
	}
	return nil
}
