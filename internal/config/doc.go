// Package config loads, normalizes, and validates Quill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// QUILL_TRANSCRIPTION_API_KEY. The Config type centralizes every knob the
// daemon and CLI need, from gateway endpoints and size thresholds to worker
// pool sizing, so settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
