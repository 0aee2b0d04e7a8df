// Package config loads, normalizes, and validates avatarmig configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AVATARMIG_CLIENT_SECRET and the CIS_SSM_*_KEY signing key identifiers. The
// Config type centralizes every knob the CLI needs, so input/output
// directories, API endpoints, and signing keys are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
