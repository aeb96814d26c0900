package infomaniak

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/logging"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// OAuthServer is the loopback HTTP server receiving the redirect of a login
// attempt. It hands the full callback URL to the waiting caller and leaves its
// interpretation to InterpretRedirect.
type OAuthServer struct {
	server   *http.Server
	listener net.Listener
	// redirect is the configured redirect URI; its path is the callback route
	redirect *url.URL
	port     int

	resultChan chan string
	errorChan  chan error

	mu      sync.Mutex
	running bool
}

// NewOAuthServer creates a callback server for a loopback http redirect URI.
// The port of the URI is used unless it has none, in which case port applies.
func NewOAuthServer(redirectURI string, port int) (*OAuthServer, error) {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !IsLoopbackRedirect(redirectURI) {
		return nil, fmt.Errorf("infomaniak: redirect uri %q is not a loopback http uri: %w", redirectURI, ErrInvalidURL)
	}
	if p := redirect.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("%w: invalid port %q", ErrInvalidURL, p)
		}
	}
	return &OAuthServer{
		redirect:   redirect,
		port:       port,
		resultChan: make(chan string, 1),
		errorChan:  make(chan error, 1),
	}, nil
}

// IsLoopbackRedirect reports whether redirectURI can be served by OAuthServer.
func IsLoopbackRedirect(redirectURI string) bool {
	parsed, err := url.Parse(redirectURI)
	if err != nil || !strings.EqualFold(parsed.Scheme, "http") {
		return false
	}
	switch strings.ToLower(parsed.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// Start binds the callback port and serves in the background.
// A busy port yields an error matching ErrPortInUse.
func (s *OAuthServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.listenAddress())
	if err != nil {
		return NewAuthenticationError(ErrPortInUse, err)
	}
	s.listener = listener
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = addr.Port
	}

	router := gin.New()
	router.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	router.GET(s.callbackPath(), s.handleCallback)
	router.GET("/favicon.ico", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.Status(http.StatusNoContent)
	})

	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	s.running = true

	go func() {
		if errServe := s.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			select {
			case s.errorChan <- NewAuthenticationError(ErrServerStartFailed, errServe):
			default:
			}
		}
	}()

	log.Debugf("OAuth callback server listening on %s", listener.Addr())
	return nil
}

// Port returns the bound port, which differs from the requested one when 0 was asked.
func (s *OAuthServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Stop shuts the server down gracefully.
func (s *OAuthServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	log.Debug("Stopping OAuth callback server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	return err
}

// WaitForCallback blocks until the redirect arrives, the server fails, ctx is
// done or timeout elapses. It returns the full callback URL.
func (s *OAuthServer) WaitForCallback(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case callbackURL := <-s.resultChan:
		return callbackURL, nil
	case err := <-s.errorChan:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrCallbackTimeout
	}
}

// IsRunning returns whether the server is currently running.
func (s *OAuthServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// listenAddress binds the IP literal of the redirect URI; localhost binds 127.0.0.1.
func (s *OAuthServer) listenAddress() string {
	host := "127.0.0.1"
	if ip := net.ParseIP(s.redirect.Hostname()); ip != nil {
		host = ip.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(s.port))
}

func (s *OAuthServer) callbackPath() string {
	if s.redirect.Path == "" {
		return "/"
	}
	return s.redirect.Path
}

func (s *OAuthServer) handleCallback(c *gin.Context) {
	callback := *s.redirect
	callback.RawQuery = c.Request.URL.RawQuery
	callback.Fragment = ""
	s.sendResult(logging.GetGinRequestID(c), callback.String())

	query := c.Request.URL.Query()
	if strings.TrimSpace(query.Get("code")) != "" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(renderPage("Authentication Successful", "&#10003;", "#0098ff", successBody)))
		return
	}

	message := "access was denied"
	if desc := strings.TrimSpace(query.Get("error_description")); desc != "" {
		message = desc
	} else if code := strings.TrimSpace(query.Get("error")); code != "" {
		message = code
	}
	body := strings.Replace(errorBodyTemplate, "{{MESSAGE}}", html.EscapeString(message), 1)
	c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(renderPage("Authentication Failed", "!", "#e53935", body)))
}

func (s *OAuthServer) sendResult(requestID, callbackURL string) {
	entry := log.WithField("request_id", requestID)
	select {
	case s.resultChan <- callbackURL:
		entry.Debug("OAuth callback sent to channel")
	default:
		entry.Warn("OAuth callback channel is full, callback dropped")
	}
}

func renderPage(title, icon, accent, body string) string {
	r := strings.NewReplacer("{{TITLE}}", title, "{{ICON}}", icon, "{{ACCENT}}", accent, "{{BODY}}", body)
	return r.Replace(pageLayout)
}
