// Package config loads the relay configuration from an optional JSON or YAML
// file followed by environment overrides. The model identifier is resolved
// here once at process start and injected into the relay handler.
package config
