package infomaniak

import (
	"fmt"
	"net/url"
	"strings"
)

// InterpretRedirect extracts the authorization code from a redirect callback URL.
// A callback without a non-empty code parameter means the user cancelled or
// declined consent and yields ErrAccessDenied. When the provider also sent an
// error parameter, the returned error wraps an ApiError describing it.
//
// Parameters:
//   - callbackURL: The full URL the browser was redirected to
//
// Returns:
//   - string: The authorization code
//   - error: ErrAccessDenied, or ErrInvalidURL if the URL cannot be parsed
func InterpretRedirect(callbackURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(callbackURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	query := parsed.Query()
	if code := strings.TrimSpace(query.Get("code")); code != "" {
		return code, nil
	}

	if errCode := strings.TrimSpace(query.Get("error")); errCode != "" {
		return "", fmt.Errorf("%w: %w", ErrAccessDenied, &ApiError{
			Code:        errCode,
			Description: strings.TrimSpace(query.Get("error_description")),
		})
	}
	return "", ErrAccessDenied
}

// RedirectMatches reports whether callbackURL targets the configured redirect URI,
// comparing scheme, host and path. Query and fragment are ignored.
func RedirectMatches(cfg Config, callbackURL string) bool {
	expected, err := url.Parse(cfg.redirectURI)
	if err != nil || expected.Scheme == "" {
		return false
	}
	actual, err := url.Parse(strings.TrimSpace(callbackURL))
	if err != nil {
		return false
	}
	if !strings.EqualFold(expected.Scheme, actual.Scheme) {
		return false
	}
	if !strings.EqualFold(expected.Host, actual.Host) {
		return false
	}
	return strings.TrimSuffix(expected.Path, "/") == strings.TrimSuffix(actual.Path, "/")
}
