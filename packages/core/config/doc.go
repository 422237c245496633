// Package config handles configuration loading and management for hitclient.
//
// It provides functionality for:
//   - Loading configuration from JSON (.hitclient.json, .hitclientrc) or YAML (hitclient.yaml) files
//   - Default configuration values
//   - Environment overrides (HITCLIENT_BASE_URL, ...) with optional .env files
//   - Watching a configuration file for changes
package config
