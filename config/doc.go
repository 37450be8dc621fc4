// Package config handles application configuration loading and validation.
//
// Configuration is loaded from config.yml, overlaid with TRANSIT_* environment
// variables (a .env file is honoured) and validated using struct tags.
package config
