package infomaniak

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors detected locally, before or without talking to the provider.
var (
	// ErrAccessDenied is returned when the redirect carries no authorization code,
	// which is how the provider reports a cancelled or declined consent.
	ErrAccessDenied = errors.New("infomaniak: access denied")
	// ErrNoRefreshToken is returned when refreshing a token that has no refresh token.
	ErrNoRefreshToken = errors.New("infomaniak: token has no refresh token")
	// ErrInvalidURL is returned when a login, redirect or callback URL is malformed.
	ErrInvalidURL = errors.New("infomaniak: invalid url")
	// ErrEmptyResponse is wrapped by a DecodeError when a 2xx response has no body.
	ErrEmptyResponse = errors.New("infomaniak: empty response body")
	// ErrAttemptSuperseded resolves a login attempt replaced by a newer one.
	ErrAttemptSuperseded = errors.New("infomaniak: login attempt superseded")
	// ErrInvalidAttestation is returned when an attestation token is not a usable JWT.
	ErrInvalidAttestation = errors.New("infomaniak: invalid attestation token")
	// ErrInvalidAccessToken is returned when an operation needs an access token and has none.
	ErrInvalidAccessToken = errors.New("infomaniak: invalid access token")
)

// ApiError is the error payload of a non-2xx token endpoint response.
type ApiError struct {
	// Code is the OAuth error code, e.g. "invalid_grant".
	Code string `json:"error"`
	// Description is a human-readable description of the error.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

// Error returns a string representation of the provider error.
func (e *ApiError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("infomaniak: provider error %s (status %d): %s", e.Code, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("infomaniak: provider error %s (status %d)", e.Code, e.StatusCode)
}

// DecodeError reports a response body that does not match the expected schema.
type DecodeError struct {
	// StatusCode is the HTTP status of the undecodable response.
	StatusCode int
	// Body is the raw response body.
	Body []byte
	// Err is the underlying decoding error.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("infomaniak: failed to decode response (status %d): %v", e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError reports a request that produced no HTTP response at all.
type TransportError struct {
	// Op names the token operation, e.g. "refresh".
	Op string
	// Err is the error returned by the HTTP transport.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("infomaniak: %s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Indeterminate reports that the provider may still have processed the request.
// A revoked token must be considered possibly valid after a TransportError.
func (e *TransportError) Indeterminate() bool { return true }

// NavigationKind classifies failures reported by a browsing surface.
type NavigationKind int

const (
	// NavigationFailed means the browsing surface could not load a page.
	NavigationFailed NavigationKind = iota + 1
	// NavigationCancelled means the surface refused a navigation or the user closed it.
	NavigationCancelled
)

func (k NavigationKind) String() string {
	switch k {
	case NavigationFailed:
		return "navigation failed"
	case NavigationCancelled:
		return "navigation cancelled"
	default:
		return "navigation error"
	}
}

// NavigationError carries a failure from the presenter that shows the login page.
type NavigationError struct {
	Kind       NavigationKind
	StatusCode int
	URL        string
	Err        error
}

// NewNavigationFailed wraps a page load failure.
func NewNavigationFailed(err error) *NavigationError {
	return &NavigationError{Kind: NavigationFailed, Err: err}
}

// NewNavigationCancelled reports a cancelled navigation; statusCode and url may be zero.
func NewNavigationCancelled(statusCode int, url string) *NavigationError {
	return &NavigationError{Kind: NavigationCancelled, StatusCode: statusCode, URL: url}
}

func (e *NavigationError) Error() string {
	msg := "infomaniak: " + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.URL != "" {
		msg += " at " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NavigationError) Unwrap() error { return e.Err }

// AuthenticationError represents failures of the local login machinery.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// Is matches authentication errors of the same type, so errors.Is works
// against the package-level values even after NewAuthenticationError.
func (e *AuthenticationError) Is(target error) bool {
	var other *AuthenticationError
	if !errors.As(target, &other) {
		return false
	}
	return other.Type == e.Type
}

// Common authentication error types.
var (
	// ErrServerStartFailed represents an error when starting the OAuth callback server fails.
	ErrServerStartFailed = &AuthenticationError{
		Type:    "server_start_failed",
		Message: "Failed to start OAuth callback server",
		Code:    http.StatusInternalServerError,
	}

	// ErrPortInUse represents an error when the OAuth callback port is already in use.
	ErrPortInUse = &AuthenticationError{
		Type:    "port_in_use",
		Message: "OAuth callback port is already in use",
		Code:    13,
	}

	// ErrCallbackTimeout represents an error when waiting for OAuth callback times out.
	ErrCallbackTimeout = &AuthenticationError{
		Type:    "callback_timeout",
		Message: "Timeout waiting for OAuth callback",
		Code:    http.StatusRequestTimeout,
	}

	// ErrCodeExchangeFailed represents an error when exchanging authorization code for tokens fails.
	ErrCodeExchangeFailed = &AuthenticationError{
		Type:    "code_exchange_failed",
		Message: "Failed to exchange authorization code for tokens",
		Code:    http.StatusBadRequest,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// IsProviderError reports whether err carries a decoded provider error.
func IsProviderError(err error) bool {
	var apiErr *ApiError
	return errors.As(err, &apiErr)
}

// GetUserFriendlyMessage returns a user-friendly error message based on the error type.
func GetUserFriendlyMessage(err error) string {
	var (
		apiErr       *ApiError
		navErr       *NavigationError
		transportErr *TransportError
		decodeErr    *DecodeError
		authErr      *AuthenticationError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccessDenied):
		return "Access denied. The login was cancelled or consent was declined."
	case errors.Is(err, ErrNoRefreshToken):
		return "This token cannot be refreshed. Please log in again."
	case errors.Is(err, ErrAttemptSuperseded):
		return "Another login was started. Please finish that one instead."
	case errors.Is(err, ErrInvalidAttestation):
		return "The attestation token is invalid or expired."
	case errors.Is(err, ErrInvalidAccessToken):
		return "Invalid access token."
	case errors.Is(err, ErrInvalidURL):
		return "Invalid url."
	case errors.As(err, &apiErr):
		switch apiErr.Code {
		case "invalid_grant":
			return "Your session is no longer valid. Please log in again."
		case "invalid_client":
			return "This application is not recognised by the login server."
		default:
			if apiErr.Description != "" {
				return fmt.Sprintf("Authentication failed: %s", apiErr.Description)
			}
			return fmt.Sprintf("Authentication failed: %s", apiErr.Code)
		}
	case errors.As(err, &navErr):
		if navErr.Kind == NavigationCancelled {
			return "Navigation cancelled."
		}
		return "Navigation failed. Please check your connection."
	case errors.As(err, &transportErr):
		return "Could not reach the login server. Please check your connection and try again."
	case errors.As(err, &decodeErr):
		return "The login server sent an unexpected response. Please try again later."
	case errors.As(err, &authErr):
		switch authErr.Type {
		case "port_in_use":
			return "The callback port is already in use. Please free it or choose another port."
		case "callback_timeout":
			return "Authentication timed out. Please try again."
		default:
			return "Authentication failed. Please try again."
		}
	default:
		return "An unexpected error occurred. Please try again."
	}
}
