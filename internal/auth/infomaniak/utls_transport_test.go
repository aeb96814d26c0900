package infomaniak

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/config"
	"golang.org/x/net/proxy"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient(nil)
	if client.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %v", client.Timeout)
	}

	client = NewHTTPClient(&config.SDKConfig{RequestTimeout: 5, TLSFingerprint: "firefox"})
	if client.Timeout != 5*time.Second {
		t.Fatalf("Timeout = %v", client.Timeout)
	}
	if _, ok := client.Transport.(*utlsRoundTripper); !ok {
		t.Fatalf("expected utls transport, got %T", client.Transport)
	}

	client = NewHTTPClient(&config.SDKConfig{ProxyURL: "http://proxy.example:3128"})
	if _, ok := client.Transport.(*http.Transport); !ok {
		t.Fatalf("expected proxy transport, got %T", client.Transport)
	}
}

func TestUtlsRoundTripperUsesHTTPProxy(t *testing.T) {
	t.Parallel()

	rt := newUtlsRoundTripper(&config.SDKConfig{ProxyURL: "http://proxy.example:3128", TLSFingerprint: "firefox"})
	if rt.dialer == proxy.Direct {
		t.Fatal("expected the http proxy to be used for fingerprinted connections")
	}
}

func TestDialAddress(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://login.infomaniak.com/token":                 "login.infomaniak.com:443",
		"https://login.preprod.dev.infomaniak.ch:8443/token": "login.preprod.dev.infomaniak.ch:8443",
		"https://[2001:db8::1]/token":                        "[2001:db8::1]:443",
		"https://[::1]:9443/token":                           "[::1]:9443",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if got := dialAddress(u); got != want {
			t.Fatalf("dialAddress(%s) = %q, want %q", raw, got, want)
		}
	}
}
