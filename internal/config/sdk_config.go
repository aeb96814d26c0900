// Package config provides configuration management for the Infomaniak login helper.
// It handles loading and parsing YAML configuration files and environment overrides,
// and provides structured access to the OAuth client settings, the auth directory,
// logging switches and outbound HTTP settings.
package config

// SDKConfig groups the outbound HTTP settings shared by every token request.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supported schemes are socks5, http and https.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// TLSFingerprint selects a browser TLS fingerprint for token requests.
	// Empty uses the Go TLS stack; "firefox" uses a uTLS Firefox ClientHello.
	TLSFingerprint string `yaml:"tls-fingerprint,omitempty" json:"tls-fingerprint,omitempty"`

	// RequestTimeout bounds each token request, in seconds. <= 0 uses the default.
	RequestTimeout int `yaml:"request-timeout,omitempty" json:"request-timeout,omitempty"`
}
