package config

import (
	"testing"
	"time"
)

func TestValidateBaseline(t *testing.T) {
	if err := Validate(LoadBaseline()); err != nil {
		t.Fatalf("baseline should validate: %v", err)
	}
}

func TestValidateNil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero connect timeout", func(c *Config) { c.Session.ConnectTimeout = 0 }},
		{"negative disconnect timeout", func(c *Config) { c.Session.DisconnectTimeout = -time.Second }},
		{"unknown link", func(c *Config) { c.Session.Link = "bluetooth" }},
		{"zero inertial capacity", func(c *Config) { c.Session.InertialCapacity = 0 }},
		{"zero position capacity", func(c *Config) { c.Session.PositionLogCapacity = 0 }},
		{"zero motor timeout", func(c *Config) { c.Motor.CommandTimeout = 0 }},
		{"jitter too large", func(c *Config) { c.Telemetry.HeartbeatJitter = c.Telemetry.HeartbeatInterval }},
		{"zero event buffer", func(c *Config) { c.Telemetry.EventBufferSize = 0 }},
		{"empty export dir", func(c *Config) { c.Export.Dir = " " }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"hs256 without secret", func(c *Config) { c.Auth.Mode = AuthHS256 }},
		{"rs256 without key", func(c *Config) { c.Auth.Mode = AuthRS256 }},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := LoadBaseline()
			tt.mutate(c)
			if err := Validate(c); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}
