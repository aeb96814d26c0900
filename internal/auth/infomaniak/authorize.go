package infomaniak

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildAuthorizationURL composes the {loginURL}/authorize URL for one login attempt.
//
// Parameters:
//   - cfg: The application configuration
//   - challenge: The PKCE code challenge of the attempt
//   - method: The PKCE challenge method, normally cfg.HashModeShort()
//   - hideCreateAccount: Appends hide_create_account to hide the sign-up button
//
// Returns:
//   - string: The complete authorization URL
//   - error: ErrInvalidURL if the login URL or redirect URI cannot be used
func BuildAuthorizationURL(cfg Config, challenge, method string, hideCreateAccount bool) (string, error) {
	authorizeURL, err := cfg.endpoint("authorize")
	if err != nil {
		return "", fmt.Errorf("infomaniak: cannot compose authorize url: %w", err)
	}
	if err = validateRedirectURI(cfg.redirectURI); err != nil {
		return "", err
	}

	params := url.Values{
		"response_type":         {string(ResponseTypeCode)},
		"client_id":             {cfg.clientID},
		"redirect_uri":          {cfg.redirectURI},
		"code_challenge_method": {method},
		"code_challenge":        {challenge},
	}
	if cfg.accessType == AccessTypeOffline {
		params.Set("access_type", string(AccessTypeOffline))
	}

	if hideCreateAccount {
		// The provider only checks for the presence of the flag.
		params.Set("hide_create_account", "")
	}
	return authorizeURL + "?" + params.Encode(), nil
}

// AuthorizationURL builds the authorization URL for the given PKCE codes.
func (c Config) AuthorizationURL(codes *PKCECodes, hideCreateAccount bool) (string, error) {
	if codes == nil {
		return "", fmt.Errorf("infomaniak: PKCE codes are required")
	}
	method := codes.CodeChallengeMethod
	if strings.TrimSpace(method) == "" {
		method = c.hashModeShort
	}
	return BuildAuthorizationURL(c, codes.CodeChallenge, method, hideCreateAccount)
}
