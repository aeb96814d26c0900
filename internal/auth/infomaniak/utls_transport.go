package infomaniak

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/config"
	"github.com/Infomaniak/infomaniak-login-go/internal/util"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// utlsRoundTripper speaks HTTP/2 over a uTLS connection presenting a Firefox
// ClientHello. Plain http requests go through fallback.
type utlsRoundTripper struct {
	mu sync.Mutex
	// connections and pending are keyed by host:port
	connections map[string]*http2.ClientConn
	// pending tracks addresses currently being dialed so only one dial runs per address
	pending  map[string]*sync.Cond
	dialer   proxy.Dialer
	fallback http.RoundTripper
}

func newUtlsRoundTripper(cfg *config.SDKConfig) *utlsRoundTripper {
	fallback := util.SetProxy(cfg, &http.Client{}).Transport
	if fallback == nil {
		fallback = http.DefaultTransport
	}
	return &utlsRoundTripper{
		connections: make(map[string]*http2.ClientConn),
		pending:     make(map[string]*sync.Cond),
		dialer:      util.ProxyDialer(cfg),
		fallback:    fallback,
	}
}

func (t *utlsRoundTripper) getOrCreateConnection(host, addr string) (*http2.ClientConn, error) {
	t.mu.Lock()

	if h2Conn, ok := t.connections[addr]; ok && h2Conn.CanTakeNewRequest() {
		t.mu.Unlock()
		return h2Conn, nil
	}

	if cond, ok := t.pending[addr]; ok {
		cond.Wait()
		if h2Conn, ok := t.connections[addr]; ok && h2Conn.CanTakeNewRequest() {
			t.mu.Unlock()
			return h2Conn, nil
		}
	}

	cond := sync.NewCond(&t.mu)
	t.pending[addr] = cond
	t.mu.Unlock()

	h2Conn, err := t.createConnection(host, addr)

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, addr)
	cond.Broadcast()

	if err != nil {
		return nil, err
	}
	t.connections[addr] = h2Conn
	return h2Conn, nil
}

func (t *utlsRoundTripper) createConnection(host, addr string) (*http2.ClientConn, error) {
	conn, err := t.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host, NextProtos: []string{"h2"}}, tls.HelloFirefox_Auto)
	if err = tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	h2Conn, err := (&http2.Transport{}).NewClientConn(tlsConn)
	if err != nil {
		_ = tlsConn.Close()
		return nil, err
	}
	return h2Conn, nil
}

// RoundTrip implements http.RoundTripper.
func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if !strings.EqualFold(req.URL.Scheme, "https") {
		return t.fallback.RoundTrip(req)
	}

	addr := dialAddress(req.URL)
	h2Conn, err := t.getOrCreateConnection(req.URL.Hostname(), addr)
	if err != nil {
		return nil, err
	}

	resp, err := h2Conn.RoundTrip(req)
	if err != nil {
		t.mu.Lock()
		if cached, ok := t.connections[addr]; ok && cached == h2Conn {
			delete(t.connections, addr)
		}
		t.mu.Unlock()
		return nil, err
	}
	return resp, nil
}

// dialAddress returns host:port for an https URL, defaulting the port to 443.
func dialAddress(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// NewHTTPClient builds the client used for token requests from the outbound
// settings: request timeout, proxy and optional Firefox TLS fingerprint.
func NewHTTPClient(cfg *config.SDKConfig) *http.Client {
	timeout := time.Duration(config.DefaultRequestTimeout) * time.Second
	if cfg != nil && cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if cfg != nil && strings.EqualFold(strings.TrimSpace(cfg.TLSFingerprint), "firefox") {
		client.Transport = newUtlsRoundTripper(cfg)
		return client
	}
	return util.SetProxy(cfg, client)
}
