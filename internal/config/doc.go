// Package config loads, normalizes, and validates reelsight configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REELSIGHT_LLM_API_KEY. The Config type centralizes every knob the daemon and
// CLI need, from the pipeline worker pool and stage weights to the ffmpeg
// binaries and inference provider credentials.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
