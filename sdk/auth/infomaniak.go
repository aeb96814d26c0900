package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	"github.com/Infomaniak/infomaniak-login-go/internal/config"
	log "github.com/sirupsen/logrus"
)

// InfomaniakAuthenticator implements the interactive Infomaniak login.
type InfomaniakAuthenticator struct {
	// HTTPClient overrides the client built from the configuration.
	HTTPClient *http.Client
}

// NewInfomaniakAuthenticator constructs an Infomaniak authenticator.
func NewInfomaniakAuthenticator() *InfomaniakAuthenticator {
	return &InfomaniakAuthenticator{}
}

// Provider returns the provider key for infomaniak.
func (InfomaniakAuthenticator) Provider() string {
	return ProviderInfomaniak
}

// RefreshLead is how long before expiry a token is refreshed.
func (InfomaniakAuthenticator) RefreshLead() *time.Duration {
	return new(5 * time.Minute)
}

// Login runs a login attempt: it shows the authorization page, waits for the
// redirect and exchanges the code for a token.
func (a *InfomaniakAuthenticator) Login(ctx context.Context, cfg *config.Config, opts *LoginOptions) (*Record, error) {
	if cfg == nil {
		return nil, fmt.Errorf("infomaniak login: configuration is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = &LoginOptions{}
	}

	appCfg := *cfg
	if opts.CallbackPort > 0 {
		appCfg.CallbackPort = opts.CallbackPort
		appCfg.RedirectURI = withRedirectPort(appCfg.RedirectURI, opts.CallbackPort)
	}
	loginCfg, err := infomaniak.LoadLoginConfig(&appCfg)
	if err != nil {
		return nil, err
	}

	session := infomaniak.NewSession(loginCfg)
	result, err := session.Login(ctx, a.presenter(&appCfg, opts), opts.HideCreateAccount || appCfg.HideCreateAccount)
	if err != nil {
		return nil, err
	}
	log.Debugf("infomaniak login: received %s", result)

	authSvc := infomaniak.NewInfomaniakAuth(loginCfg, a.client(&appCfg))
	token, err := authSvc.ExchangeLoginResult(ctx, result)
	if err != nil {
		return nil, infomaniak.NewAuthenticationError(infomaniak.ErrCodeExchangeFailed, err)
	}
	log.Info("Infomaniak authentication successful")
	return NewRecord(token, loginCfg), nil
}

// Client returns a token client for the configuration, used to refresh, derive
// or revoke stored tokens.
func (a *InfomaniakAuthenticator) Client(cfg *config.Config) (*infomaniak.InfomaniakAuth, error) {
	loginCfg, err := infomaniak.LoadLoginConfig(cfg)
	if err != nil {
		return nil, err
	}
	return infomaniak.NewInfomaniakAuth(loginCfg, a.client(cfg)), nil
}

func (a *InfomaniakAuthenticator) client(cfg *config.Config) *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return infomaniak.NewHTTPClient(&cfg.SDKConfig)
}

func (a *InfomaniakAuthenticator) presenter(cfg *config.Config, opts *LoginOptions) infomaniak.Presenter {
	if infomaniak.IsLoopbackRedirect(cfg.RedirectURI) {
		return &LoopbackPresenter{
			RedirectURI:       cfg.RedirectURI,
			Port:              cfg.CallbackPort,
			NoBrowser:         opts.NoBrowser,
			Prompt:            opts.Prompt,
			Out:               opts.Out,
			CallbackTimeout:   opts.CallbackTimeout,
			ManualPromptDelay: opts.ManualPromptDelay,
		}
	}
	return &PromptPresenter{
		RedirectURI: cfg.RedirectURI,
		Prompt:      opts.Prompt,
		Out:         opts.Out,
		NoBrowser:   opts.NoBrowser,
	}
}

// withRedirectPort moves a loopback redirect URI to port. Other URIs are
// returned unchanged.
func withRedirectPort(redirectURI string, port int) string {
	if !infomaniak.IsLoopbackRedirect(redirectURI) {
		return redirectURI
	}
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	parsed.Host = net.JoinHostPort(parsed.Hostname(), strconv.Itoa(port))
	return parsed.String()
}
