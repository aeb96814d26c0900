package infomaniak

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Infomaniak/infomaniak-login-go/internal/config"
)

// OAuth configuration constants for Infomaniak
const (
	DefaultLoginURL = "https://login.infomaniak.com/"
	HashMode        = "SHA-256"
	HashModeShort   = "S256"
)

// ResponseType is the OAuth response type requested from the authorize endpoint.
type ResponseType string

// ResponseTypeCode is the only response type the provider supports.
const ResponseTypeCode ResponseType = "code"

// AccessType selects between refresh-token based and non-expiring tokens.
type AccessType string

const (
	// AccessTypeOffline requests an expiring access token plus a refresh token.
	AccessTypeOffline AccessType = "offline"
	// AccessTypeNone requests a non-expiring access token. Refresh and derive
	// calls then ask for duration=infinite so the token stays non-expiring.
	AccessTypeNone AccessType = ""
)

// ParseAccessType maps a configuration string to an AccessType.
// "offline" selects AccessTypeOffline; "", "none" and "infinite" select AccessTypeNone.
func ParseAccessType(value string) (AccessType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "offline":
		return AccessTypeOffline, nil
	case "", "none", "infinite":
		return AccessTypeNone, nil
	default:
		return AccessTypeNone, fmt.Errorf("infomaniak: unknown access type %q", value)
	}
}

// String returns the wire value, or "none" for AccessTypeNone.
func (a AccessType) String() string {
	if a == AccessTypeNone {
		return "none"
	}
	return string(a)
}

// Config is the immutable per-application OAuth configuration.
// Build it once with NewConfig and share it freely; it has no setters.
type Config struct {
	clientID      string
	loginURL      url.URL
	redirectURI   string
	responseType  ResponseType
	accessType    AccessType
	hashMode      string
	hashModeShort string
}

// ConfigOption customizes a Config during NewConfig.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	loginURL    string
	redirectURI string
	accessType  AccessType
}

// WithLoginURL replaces the production login base URL, e.g. with a preprod host.
func WithLoginURL(loginURL string) ConfigOption {
	return func(b *configBuilder) { b.loginURL = loginURL }
}

// WithRedirectURI sets the redirect URI registered for the client.
func WithRedirectURI(redirectURI string) ConfigOption {
	return func(b *configBuilder) { b.redirectURI = redirectURI }
}

// WithAccessType selects offline (refresh token) or non-expiring tokens.
func WithAccessType(accessType AccessType) ConfigOption {
	return func(b *configBuilder) { b.accessType = accessType }
}

// NewConfig validates and builds a Config for the given client.
//
// Parameters:
//   - clientID: The identifier issued by the provider for this application
//   - opts: Optional overrides; the access type defaults to offline
//
// Returns:
//   - Config: The immutable configuration
//   - error: An error if the client ID is empty or a URL is malformed
func NewConfig(clientID string, opts ...ConfigOption) (Config, error) {
	b := &configBuilder{
		loginURL:   DefaultLoginURL,
		accessType: AccessTypeOffline,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return Config{}, fmt.Errorf("infomaniak: client id is required")
	}

	loginURL, err := url.Parse(strings.TrimSpace(b.loginURL))
	if err != nil {
		return Config{}, fmt.Errorf("infomaniak: invalid login url: %w", err)
	}
	if loginURL.Scheme == "" || loginURL.Host == "" {
		return Config{}, fmt.Errorf("infomaniak: login url %q must be absolute: %w", b.loginURL, ErrInvalidURL)
	}

	if err = validateRedirectURI(b.redirectURI); err != nil {
		return Config{}, err
	}

	if b.accessType != AccessTypeOffline && b.accessType != AccessTypeNone {
		return Config{}, fmt.Errorf("infomaniak: unsupported access type %q", string(b.accessType))
	}

	return Config{
		clientID:      clientID,
		loginURL:      *loginURL,
		redirectURI:   b.redirectURI,
		responseType:  ResponseTypeCode,
		accessType:    b.accessType,
		hashMode:      HashMode,
		hashModeShort: HashModeShort,
	}, nil
}

// ClientID returns the OAuth client identifier.
func (c Config) ClientID() string { return c.clientID }

// LoginURL returns a copy of the login base URL.
func (c Config) LoginURL() *url.URL {
	u := c.loginURL
	return &u
}

// RedirectURI returns the registered redirect URI.
func (c Config) RedirectURI() string { return c.redirectURI }

// ResponseType returns the OAuth response type, always "code".
func (c Config) ResponseType() ResponseType { return c.responseType }

// AccessType returns the configured access type.
func (c Config) AccessType() AccessType { return c.accessType }

// HashMode returns the long name of the PKCE hash.
func (c Config) HashMode() string { return c.hashMode }

// HashModeShort returns the PKCE code_challenge_method value.
func (c Config) HashModeShort() string { return c.hashModeShort }

// NonExpiring reports whether non-expiring tokens are requested.
func (c Config) NonExpiring() bool { return c.accessType == AccessTypeNone }

// endpoint joins a path below the login base URL.
func (c Config) endpoint(path string) (string, error) {
	if c.loginURL.Scheme == "" || c.loginURL.Host == "" {
		return "", ErrInvalidURL
	}
	return c.loginURL.JoinPath(path).String(), nil
}

// TokenURL returns {loginURL}/token.
func (c Config) TokenURL() (string, error) {
	return c.endpoint("token")
}

func validateRedirectURI(redirectURI string) error {
	if strings.TrimSpace(redirectURI) == "" {
		return fmt.Errorf("infomaniak: redirect uri is required: %w", ErrInvalidURL)
	}
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("infomaniak: invalid redirect uri %q: %w", redirectURI, ErrInvalidURL)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("infomaniak: redirect uri %q has no scheme: %w", redirectURI, ErrInvalidURL)
	}
	return nil
}

// LoadLoginConfig builds the OAuth configuration from the application settings.
func LoadLoginConfig(appCfg *config.Config) (Config, error) {
	if appCfg == nil {
		return Config{}, fmt.Errorf("infomaniak: configuration is required")
	}
	accessType, err := ParseAccessType(appCfg.AccessType)
	if err != nil {
		return Config{}, err
	}
	opts := []ConfigOption{WithAccessType(accessType)}
	if appCfg.LoginURL != "" {
		opts = append(opts, WithLoginURL(appCfg.LoginURL))
	}
	if appCfg.RedirectURI != "" {
		opts = append(opts, WithRedirectURI(appCfg.RedirectURI))
	}
	return NewConfig(appCfg.ClientID, opts...)
}
