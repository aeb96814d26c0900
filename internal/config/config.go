package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLoginURL is the production Infomaniak login server.
	DefaultLoginURL = "https://login.infomaniak.com/"
	// DefaultCallbackPort is the loopback port used when the redirect URI is not set.
	DefaultCallbackPort = 54546
	// DefaultAuthDir is where the CLI keeps token files.
	DefaultAuthDir = "~/.infomaniak-login"
	// DefaultRequestTimeout is the token request timeout in seconds.
	DefaultRequestTimeout = 30
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// ClientID is the OAuth client identifier issued by Infomaniak.
	ClientID string `yaml:"client-id" json:"client-id"`

	// LoginURL is the login server base URL. Replace with a preprod host for testing.
	LoginURL string `yaml:"login-url" json:"login-url"`

	// RedirectURI is the redirect URI registered for the client. When empty a loopback
	// URI on CallbackPort is used.
	RedirectURI string `yaml:"redirect-uri" json:"redirect-uri"`

	// AccessType is "offline" for refresh-token based auth, "none" for non-expiring tokens.
	AccessType string `yaml:"access-type" json:"access-type"`

	// CallbackPort is the port of the local callback server.
	CallbackPort int `yaml:"callback-port" json:"callback-port"`

	// HideCreateAccount hides the sign-up button on the login page.
	HideCreateAccount bool `yaml:"hide-create-account" json:"hide-create-account"`

	// AuthDir is the directory where token files are stored.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// Debug enables debug level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile writes logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxTotalSizeMB caps the total size of the log directory. <= 0 disables the cap.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`
}

// envOverrides maps environment variables onto configuration fields.
var envOverrides = map[string]func(*Config, string) error{
	"INFOMANIAK_CLIENT_ID":    func(c *Config, v string) error { c.ClientID = v; return nil },
	"INFOMANIAK_LOGIN_URL":    func(c *Config, v string) error { c.LoginURL = v; return nil },
	"INFOMANIAK_REDIRECT_URI": func(c *Config, v string) error { c.RedirectURI = v; return nil },
	"INFOMANIAK_ACCESS_TYPE":  func(c *Config, v string) error { c.AccessType = v; return nil },
	"INFOMANIAK_PROXY_URL":    func(c *Config, v string) error { c.ProxyURL = v; return nil },
	"INFOMANIAK_AUTH_DIR":     func(c *Config, v string) error { c.AuthDir = v; return nil },
	"INFOMANIAK_CALLBACK_PORT": func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INFOMANIAK_CALLBACK_PORT: %w", err)
		}
		c.CallbackPort = port
		return nil
	},
	"INFOMANIAK_DEBUG": func(c *Config, v string) error {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INFOMANIAK_DEBUG: %w", err)
		}
		c.Debug = debug
		return nil
	},
}

// LoadConfig reads a YAML configuration file, applies environment overrides
// and fills defaults.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigOptional(path, false)
}

// LoadConfigOptional is like LoadConfig, but when optional is true a missing or
// empty path yields a configuration built from defaults and the environment.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	cfg := &Config{}

	path = strings.TrimSpace(path)
	if path == "" && !optional {
		return nil, fmt.Errorf("config: path is required")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && optional:
		default:
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.SanitizeDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables resolved through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for key, apply := range envOverrides {
		value, ok := lookup(key)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if err := apply(c, value); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// SanitizeDefaults fills unset fields with their defaults.
func (c *Config) SanitizeDefaults() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	if strings.TrimSpace(c.LoginURL) == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.CallbackPort <= 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		c.RedirectURI = fmt.Sprintf("http://localhost:%d/oauth2redirect", c.CallbackPort)
	}
	if strings.TrimSpace(c.AccessType) == "" {
		c.AccessType = "offline"
	}
	if strings.TrimSpace(c.AuthDir) == "" {
		c.AuthDir = DefaultAuthDir
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Validate reports settings that make a login impossible.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("config: client-id is required (or set INFOMANIAK_CLIENT_ID)")
	}
	switch strings.ToLower(strings.TrimSpace(c.TLSFingerprint)) {
	case "", "firefox":
	default:
		return fmt.Errorf("config: unsupported tls-fingerprint %q", c.TLSFingerprint)
	}
	return nil
}
