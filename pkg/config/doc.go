// Package config defines the configuration model for Mercator Ganymede and
// loads it from YAML with defaults, validation, and environment overrides.
//
// The loading pipeline is LoadConfig → ApplyDefaults → Validate. Validation
// failures are fatal at startup: the ingress never accepts traffic on a
// half-valid configuration.
package config
