// Package config loads, normalizes, and validates tapedeck configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// TAPEDECK_COUNTRY and TAPEDECK_FFMPEG. The Config type centralizes every knob
// the CLI needs so that data directories, marketplace selection, and external
// tool locations are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
