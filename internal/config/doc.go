// Package config loads, normalizes, and validates tvship's TOML
// configuration. Paths are tilde-expanded and made absolute during load so
// the rest of the pipeline never deals with relative or home-anchored paths.
package config
