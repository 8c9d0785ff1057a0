// Package config loads, normalizes, and validates gridflow configuration.
//
// Configuration lives in a single TOML file (default
// ~/.config/gridflow/config.toml). Every path field is tilde-expanded and
// made absolute during Load, so downstream code can use values verbatim.
package config
