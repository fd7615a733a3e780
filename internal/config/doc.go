// Package config provides configuration loading and validation for the analyze relay.
// It handles YAML-based configuration layered over built-in defaults, optional .env
// files and RELAY_* environment overrides.
package config
