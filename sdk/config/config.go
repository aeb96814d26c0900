// Package config provides the public SDK configuration API.
//
// It re-exports the configuration types and helpers so external projects can
// embed the login helper without importing internal packages.
package config

import internalconfig "github.com/Infomaniak/infomaniak-login-go/internal/config"

type SDKConfig = internalconfig.SDKConfig

type Config = internalconfig.Config

// LoadConfig reads a YAML configuration file and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	return internalconfig.LoadConfig(path)
}

// LoadConfigOptional is like LoadConfig but tolerates a missing file when optional is true.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	return internalconfig.LoadConfigOptional(path, optional)
}
