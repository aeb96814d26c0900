package auth

import (
	"context"
	"io"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/config"
)

// LoginOptions captures the knobs of an interactive login.
type LoginOptions struct {
	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool
	// CallbackPort overrides the configured loopback port.
	CallbackPort int
	// HideCreateAccount hides the sign-up button on the login page.
	HideCreateAccount bool
	// Prompt reads a pasted callback URL when the loopback callback does not arrive.
	Prompt func(prompt string) (string, error)
	// Out receives user facing instructions; nil means stdout.
	Out io.Writer
	// CallbackTimeout bounds the wait for the redirect; zero uses five minutes.
	CallbackTimeout time.Duration
	// ManualPromptDelay is how long to wait before offering Prompt; zero uses 15 seconds.
	ManualPromptDelay time.Duration
}

// Authenticator runs the login flow and refresh policy of a provider.
type Authenticator interface {
	Provider() string
	Login(ctx context.Context, cfg *config.Config, opts *LoginOptions) (*Record, error)
	RefreshLead() *time.Duration
}
