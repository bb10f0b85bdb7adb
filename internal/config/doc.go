// Package config loads, validates, and defaults melt's TOML configuration.
package config
