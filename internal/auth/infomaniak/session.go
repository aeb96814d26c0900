package infomaniak

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Presenter shows the authorization URL to the user and returns the callback URL
// the browser was redirected to. Implementations report browsing failures with
// *NavigationError and must honour ctx cancellation.
type Presenter interface {
	Present(ctx context.Context, authorizationURL string) (callbackURL string, err error)
}

// PresenterFunc adapts a function to the Presenter interface.
type PresenterFunc func(ctx context.Context, authorizationURL string) (string, error)

// Present calls f(ctx, authorizationURL).
func (f PresenterFunc) Present(ctx context.Context, authorizationURL string) (string, error) {
	return f(ctx, authorizationURL)
}

// Session holds the configuration and the single in-flight login attempt of one
// login context. Create one per context; it is safe for concurrent use.
type Session struct {
	cfg Config

	mu      sync.Mutex
	current *Attempt
}

// NewSession creates a session for cfg.
func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Begin starts a new login attempt with fresh PKCE state. An attempt still in
// flight is resolved with ErrAttemptSuperseded.
func (s *Session) Begin(hideCreateAccount bool) (*Attempt, error) {
	codes, err := GeneratePKCECodes()
	if err != nil {
		return nil, err
	}
	authURL, err := s.cfg.AuthorizationURL(codes, hideCreateAccount)
	if err != nil {
		return nil, err
	}

	attempt := &Attempt{
		session: s,
		url:     authURL,
		codes:   codes,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	previous := s.current
	s.current = attempt
	s.mu.Unlock()

	if previous != nil && previous.finish(LoginResult{}, ErrAttemptSuperseded) {
		log.Debug("previous login attempt superseded")
	}
	return attempt, nil
}

// Current returns the in-flight attempt, or nil.
func (s *Session) Current() *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// HandleRedirect routes a callback URL to the in-flight attempt. It returns false
// when there is no attempt or the URL does not target the configured redirect URI.
func (s *Session) HandleRedirect(callbackURL string) bool {
	attempt := s.Current()
	if attempt == nil || !RedirectMatches(s.cfg, callbackURL) {
		return false
	}
	_, _ = attempt.Resolve(callbackURL)
	return true
}

// Login runs one interactive attempt: begin, present the URL, then resolve with
// the callback URL or the presenter failure.
func (s *Session) Login(ctx context.Context, presenter Presenter, hideCreateAccount bool) (LoginResult, error) {
	if presenter == nil {
		return LoginResult{}, errors.New("infomaniak: presenter is required")
	}
	attempt, err := s.Begin(hideCreateAccount)
	if err != nil {
		return LoginResult{}, err
	}

	presentCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		callbackURL, errPresent := presenter.Present(presentCtx, attempt.AuthorizationURL())
		if errPresent != nil {
			attempt.Fail(errPresent)
			return
		}
		_, _ = attempt.Resolve(callbackURL)
	}()

	return attempt.Wait(ctx)
}

func (s *Session) release(a *Attempt) {
	s.mu.Lock()
	if s.current == a {
		s.current = nil
	}
	s.mu.Unlock()
}

// Attempt is one authorization attempt. It resolves exactly once, with either a
// LoginResult or an error; later resolutions are ignored.
type Attempt struct {
	session *Session
	url     string
	codes   *PKCECodes

	once   sync.Once
	done   chan struct{}
	result LoginResult
	err    error
}

// AuthorizationURL returns the URL to present to the user.
func (a *Attempt) AuthorizationURL() string { return a.url }

// CodeChallenge returns the PKCE challenge sent in the authorization URL.
func (a *Attempt) CodeChallenge() string { return a.codes.CodeChallenge }

// Resolve interprets callbackURL and resolves the attempt. It returns the
// attempt outcome, which is the earlier one if the attempt was already resolved.
func (a *Attempt) Resolve(callbackURL string) (LoginResult, error) {
	code, err := InterpretRedirect(callbackURL)
	if err != nil {
		a.finish(LoginResult{}, err)
	} else {
		a.finish(LoginResult{Code: code, CodeVerifier: a.codes.CodeVerifier}, nil)
	}
	return a.Result()
}

// Fail resolves the attempt with err, typically a *NavigationError.
func (a *Attempt) Fail(err error) {
	if err == nil {
		err = NewNavigationCancelled(0, "")
	}
	a.finish(LoginResult{}, err)
}

// Done is closed once the attempt is resolved.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Result returns the outcome of a resolved attempt. It must only be called after Done is closed.
func (a *Attempt) Result() (LoginResult, error) {
	<-a.done
	return a.result, a.err
}

// Wait blocks until the attempt resolves or ctx is done. When ctx ends first
// the attempt is resolved with the context error.
func (a *Attempt) Wait(ctx context.Context) (LoginResult, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		a.finish(LoginResult{}, ctx.Err())
	}
	return a.Result()
}

func (a *Attempt) finish(result LoginResult, err error) bool {
	resolved := false
	a.once.Do(func() {
		a.result, a.err = result, err
		close(a.done)
		resolved = true
	})
	if resolved && a.session != nil {
		a.session.release(a)
	}
	return resolved
}
