// Package config implements the configuration store for the ground control service.
//
// Configuration is layered: baseline defaults, an optional YAML file, then
// GCS_* environment overrides. The merged result is validated before use.
package config
