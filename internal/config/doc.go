// Package config loads, normalizes, and validates slowmo configuration.
//
// It supplies defaults, applies the per-platform path tables
// ([paths.windows], [paths.darwin], [paths.linux]), expands tilde paths, and
// decodes TOML strictly so a misspelled key fails at startup instead of being
// silently ignored. Problems are reported as *Error values naming the
// offending key.
//
// The Config is read-only once Load returns.
package config
