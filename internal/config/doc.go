// Package config loads, normalizes, and validates codeflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies environment overrides such as
// CODEFLOW_SANDBOX_URL or the legacy C_RUNNER_URL and DATABASE_URL variables.
// The Config type centralizes every knob the daemon, the sandbox service and
// the CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
