package infomaniak

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// ApiToken is a token issued by the Infomaniak token endpoint.
// Treat it as an immutable value: refresh and derive return new tokens.
type ApiToken struct {
	// AccessToken is the bearer credential used for API calls.
	AccessToken string
	// RefreshToken is empty unless the token was requested with offline access.
	RefreshToken string
	// Scope is the space separated list of granted scopes.
	Scope string
	// TokenType is normally "Bearer".
	TokenType string
	// UserID identifies the Infomaniak user owning the token.
	UserID int
	// ExpiresIn is the lifetime in seconds announced by the provider, nil if the token never expires.
	ExpiresIn *int
	// ExpirationDate is the absolute expiry, nil if the token never expires.
	ExpirationDate *time.Time
}

type apiTokenJSON struct {
	AccessToken    *string    `json:"access_token"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	Scope          *string    `json:"scope"`
	TokenType      *string    `json:"token_type"`
	UserID         *int       `json:"user_id"`
	ExpiresIn      *int       `json:"expires_in,omitempty"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
}

// expirationKeys lists where an absolute expiry may be found: the provider
// field first, then the key written when a token is persisted.
var expirationKeys = []string{"expiration_date", "expirationDate"}

// ParseApiToken decodes a token endpoint response body.
func ParseApiToken(data []byte) (*ApiToken, error) {
	var token ApiToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// UnmarshalJSON decodes a token and computes its expiration date. An explicit
// expiration date wins; otherwise it is now plus expires_in. Without
// expires_in the token does not expire.
func (t *ApiToken) UnmarshalJSON(data []byte) error {
	var raw struct {
		AccessToken  *string `json:"access_token"`
		RefreshToken *string `json:"refresh_token"`
		Scope        *string `json:"scope"`
		TokenType    *string `json:"token_type"`
		UserID       *int    `json:"user_id"`
		ExpiresIn    *int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.AccessToken == nil:
		return fmt.Errorf("token: missing access_token")
	case raw.Scope == nil:
		return fmt.Errorf("token: missing scope")
	case raw.TokenType == nil:
		return fmt.Errorf("token: missing token_type")
	case raw.UserID == nil:
		return fmt.Errorf("token: missing user_id")
	}

	decoded := ApiToken{
		AccessToken: *raw.AccessToken,
		Scope:       *raw.Scope,
		TokenType:   *raw.TokenType,
		UserID:      *raw.UserID,
		ExpiresIn:   raw.ExpiresIn,
	}
	if raw.RefreshToken != nil {
		decoded.RefreshToken = *raw.RefreshToken
	}

	if raw.ExpiresIn != nil {
		expiration := time.Now().Add(time.Duration(*raw.ExpiresIn) * time.Second)
		for _, key := range expirationKeys {
			result := gjson.GetBytes(data, key)
			if !result.Exists() || result.Type == gjson.Null {
				continue
			}
			parsed, err := parseExpiration(result)
			if err != nil {
				return fmt.Errorf("token: invalid %s: %w", key, err)
			}
			expiration = parsed
			break
		}
		decoded.ExpirationDate = &expiration
	}

	*t = decoded
	return nil
}

// MarshalJSON writes the token in the provider format plus the computed
// expirationDate, so a persisted token keeps its original expiry when reloaded.
func (t ApiToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(apiTokenJSON{
		AccessToken:    &t.AccessToken,
		RefreshToken:   t.RefreshToken,
		Scope:          &t.Scope,
		TokenType:      &t.TokenType,
		UserID:         &t.UserID,
		ExpiresIn:      t.ExpiresIn,
		ExpirationDate: t.ExpirationDate,
	})
}

func parseExpiration(result gjson.Result) (time.Time, error) {
	switch result.Type {
	case gjson.Number:
		return time.Unix(result.Int(), 0), nil
	case gjson.String:
		return time.Parse(time.RFC3339, result.Str)
	default:
		return time.Time{}, fmt.Errorf("unsupported value %s", result.Raw)
	}
}

// HasRefreshToken reports whether the token can be refreshed.
func (t *ApiToken) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// Expired reports whether the token has expired at the given instant.
func (t *ApiToken) Expired(now time.Time) bool {
	return t.ExpiresWithin(0, now)
}

// ExpiresWithin reports whether the token expires within d of now.
// Non-expiring tokens never do.
func (t *ApiToken) ExpiresWithin(d time.Duration, now time.Time) bool {
	if t == nil || t.ExpirationDate == nil {
		return false
	}
	return !now.Add(d).Before(*t.ExpirationDate)
}

// TruncatedAccessToken returns the access token shortened for logs.
func (t *ApiToken) TruncatedAccessToken() string {
	return truncateToken(t.AccessToken)
}

// TruncatedRefreshToken returns the refresh token shortened for logs, or "".
func (t *ApiToken) TruncatedRefreshToken() string {
	if t.RefreshToken == "" {
		return ""
	}
	return truncateToken(t.RefreshToken)
}

// OAuth2 converts the token for use with golang.org/x/oauth2 clients.
// The user id and scope are available through Extra.
func (t *ApiToken) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
	}
	if t.ExpirationDate != nil {
		tok.Expiry = *t.ExpirationDate
	}
	if t.ExpiresIn != nil {
		tok.ExpiresIn = int64(*t.ExpiresIn)
	}
	return tok.WithExtra(map[string]any{
		"user_id": t.UserID,
		"scope":   t.Scope,
	})
}

// String keeps secrets out of logs.
func (t *ApiToken) String() string {
	if t == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ApiToken{user=%d type=%s access=%s", t.UserID, t.TokenType, t.TruncatedAccessToken())
	if t.RefreshToken != "" {
		fmt.Fprintf(&b, " refresh=%s", t.TruncatedRefreshToken())
	}
	if t.ExpirationDate != nil {
		fmt.Fprintf(&b, " expires=%s", t.ExpirationDate.Format(time.RFC3339))
	}
	b.WriteString("}")
	return b.String()
}

func truncateToken(token string) string {
	if len(token) <= 8 {
		return "-*****-"
	}
	return token[:4] + "-*****-" + token[len(token)-4:]
}
