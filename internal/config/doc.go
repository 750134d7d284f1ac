// Package config loads and validates relay-gateway configuration from
// YAML, with ${VAR} environment expansion and duration strings parsed
// after load.
package config
