// Package config implements the configuration layer for the ring stiffness
// dashboard and its simulated backend.
//
// Values are resolved in four steps: Baseline defaults, an optional YAML
// file, RINGMON_* environment overrides and finally Validate. Each later
// step wins over the earlier ones.
package config
