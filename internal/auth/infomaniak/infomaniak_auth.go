package infomaniak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/logging"
	"github.com/Infomaniak/infomaniak-login-go/internal/util"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// Grant and token type identifiers sent to the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeTokenExchange     = "urn:ietf:params:oauth:grant-type:token-exchange"
	SubjectTokenTypeAccess     = "urn:ietf:params:oauth:token-type:access_token"
	ClientAssertionTypeJWT     = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// durationInfinite asks the provider to keep a refreshed or derived token non-expiring.
	durationInfinite = "infinite"
)

// InfomaniakAuth performs the token endpoint operations: code exchange,
// refresh, derive and revoke. It holds no per-token state, so concurrent calls
// on different tokens are safe. Nothing is retried.
type InfomaniakAuth struct {
	cfg        Config
	httpClient *http.Client
}

// NewInfomaniakAuth creates a token client for cfg. A nil httpClient is replaced
// by a client with the default request timeout.
func NewInfomaniakAuth(cfg Config, httpClient *http.Client) *InfomaniakAuth {
	if httpClient == nil {
		httpClient = NewHTTPClient(nil)
	}
	return &InfomaniakAuth{cfg: cfg, httpClient: httpClient}
}

// Config returns the configuration the client was built with.
func (o *InfomaniakAuth) Config() Config { return o.cfg }

// ExchangeCodeForTokens exchanges an authorization code for a token.
//
// Parameters:
//   - ctx: The context for the request
//   - code: The authorization code extracted from the redirect
//   - codeVerifier: The verifier whose challenge was sent in the authorization request
//
// Returns:
//   - *ApiToken: The issued token
//   - error: An *ApiError, *DecodeError or *TransportError
func (o *InfomaniakAuth) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*ApiToken, error) {
	form := url.Values{
		"grant_type":    {GrantTypeAuthorizationCode},
		"client_id":     {o.cfg.clientID},
		"code":          {code},
		"code_verifier": {codeVerifier},
		"redirect_uri":  {o.cfg.redirectURI},
	}
	return o.requestToken(ctx, "exchange", form)
}

// ExchangeLoginResult is ExchangeCodeForTokens for a resolved login attempt.
func (o *InfomaniakAuth) ExchangeLoginResult(ctx context.Context, result LoginResult) (*ApiToken, error) {
	return o.ExchangeCodeForTokens(ctx, result.Code, result.CodeVerifier)
}

// RefreshTokens obtains a new token from the refresh token of token.
// It fails with ErrNoRefreshToken without any network call when token cannot
// be refreshed. The provider rotates refresh tokens: discard token on success.
func (o *InfomaniakAuth) RefreshTokens(ctx context.Context, token *ApiToken) (*ApiToken, error) {
	if !token.HasRefreshToken() {
		return nil, ErrNoRefreshToken
	}
	form := url.Values{
		"grant_type":    {GrantTypeRefreshToken},
		"client_id":     {o.cfg.clientID},
		"refresh_token": {token.RefreshToken},
	}
	o.applyDuration(form)
	return o.requestToken(ctx, "refresh", form)
}

// DeriveToken exchanges token plus an attestation JWT for a new token.
// The attestation is checked locally for JWT structure and expiry only; its
// signature is verified by the provider.
func (o *InfomaniakAuth) DeriveToken(ctx context.Context, token *ApiToken, attestationToken string) (*ApiToken, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrInvalidAccessToken
	}
	if err := checkAttestation(attestationToken, time.Now()); err != nil {
		return nil, err
	}
	form := url.Values{
		"grant_type":            {GrantTypeTokenExchange},
		"subject_token":         {token.AccessToken},
		"subject_token_type":    {SubjectTokenTypeAccess},
		"client_assertion_type": {ClientAssertionTypeJWT},
		"client_assertion":      {attestationToken},
		"client_id":             {o.cfg.clientID},
	}
	o.applyDuration(form)
	return o.requestToken(ctx, "derive", form)
}

// DeleteToken revokes token. A 2xx status is success whatever the body.
// After a *TransportError the token must be treated as possibly still valid.
func (o *InfomaniakAuth) DeleteToken(ctx context.Context, token *ApiToken) error {
	if token == nil || token.AccessToken == "" {
		return ErrInvalidAccessToken
	}
	tokenURL, err := o.cfg.TokenURL()
	if err != nil {
		return err
	}
	ctx, _ = logging.EnsureRequestID(ctx)
	entry := logging.FromContext(ctx).WithField("op", "revoke")

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, tokenURL, nil)
	if err != nil {
		return fmt.Errorf("infomaniak: failed to create revoke request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	entry.Debugf("DELETE %s Authorization=%s", tokenURL, util.MaskAuthorizationHeader(req.Header.Get("Authorization")))

	status, body, err := o.do(req, "revoke")
	if err != nil {
		entry.WithError(err).Debug("revoke request failed, token state unknown")
		return err
	}
	entry.WithField("status", status).Debug("revoke response received")
	if isSuccessful(status) {
		return nil
	}
	return decodeApiError(status, body)
}

func (o *InfomaniakAuth) applyDuration(form url.Values) {
	if o.cfg.NonExpiring() {
		form.Set("duration", durationInfinite)
	}
}

// requestToken posts a form to the token endpoint and interprets the response.
func (o *InfomaniakAuth) requestToken(ctx context.Context, op string, form url.Values) (*ApiToken, error) {
	tokenURL, err := o.cfg.TokenURL()
	if err != nil {
		return nil, err
	}
	ctx, _ = logging.EnsureRequestID(ctx)
	entry := logging.FromContext(ctx).WithField("op", op)

	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("infomaniak: failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	entry.Debugf("POST %s %s", tokenURL, util.MaskSensitiveQuery(encoded))

	status, body, err := o.do(req, op)
	if err != nil {
		entry.WithError(err).Debug("token request failed")
		return nil, err
	}
	entry.WithField("status", status).Debug("token response received")

	token, err := interpretTokenResponse(status, body)
	if err != nil {
		return nil, err
	}
	entry.WithField("user_id", token.UserID).Debugf("token issued: %s", token)
	return token, nil
}

// do sends req and reads the whole body. Failures before a complete response
// is available are reported as *TransportError.
func (o *InfomaniakAuth) do(req *http.Request, op string) (int, []byte, error) {
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return resp.StatusCode, body, nil
}

// interpretTokenResponse decodes a token endpoint response. Success requires a
// 2xx status and a non-empty body; a 2xx without body is a *DecodeError
// wrapping ErrEmptyResponse.
func interpretTokenResponse(status int, body []byte) (*ApiToken, error) {
	if !isSuccessful(status) {
		return nil, decodeApiError(status, body)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &DecodeError{StatusCode: status, Err: ErrEmptyResponse}
	}
	token, err := ParseApiToken(body)
	if err != nil {
		return nil, &DecodeError{StatusCode: status, Body: body, Err: err}
	}
	return token, nil
}

// decodeApiError decodes a non-2xx body as an *ApiError. A body that does
// not carry an error code is reported as a *DecodeError.
func decodeApiError(status int, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return &DecodeError{StatusCode: status, Err: ErrEmptyResponse}
	}
	var apiErr ApiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &DecodeError{StatusCode: status, Body: body, Err: err}
	}
	if apiErr.Code == "" {
		return &DecodeError{StatusCode: status, Body: body, Err: fmt.Errorf("missing error field")}
	}
	apiErr.StatusCode = status
	return &apiErr
}

func isSuccessful(status int) bool {
	return status >= http.StatusOK && status <= 299
}

// checkAttestation rejects attestation tokens that are not JWTs or have expired.
func checkAttestation(attestationToken string, now time.Time) error {
	attestationToken = strings.TrimSpace(attestationToken)
	if attestationToken == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAttestation)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(attestationToken, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAttestation, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAttestation, err)
	}
	if exp != nil && !now.Before(exp.Time) {
		return fmt.Errorf("%w: expired at %s", ErrInvalidAttestation, exp.Time.Format(time.RFC3339))
	}
	return nil
}
