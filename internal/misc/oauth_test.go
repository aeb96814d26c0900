package misc

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/Infomaniak/infomaniak-login-go/internal/config"
)

const testRedirect = "http://localhost:54546/oauth2redirect"

func TestNormalizeCallbackInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		input    string
		wantCode string
		wantErr  bool
	}{
		{name: "full url", input: "http://localhost:54546/oauth2redirect?code=ABC123", wantCode: "ABC123"},
		{name: "query", input: "?code=ABC123", wantCode: "ABC123"},
		{name: "query without prefix", input: "code=ABC123&x=1", wantCode: "ABC123"},
		{name: "bare code", input: "  ABC123 ", wantCode: "ABC123"},
		{name: "fragment", input: "http://localhost:54546/oauth2redirect#code=FRAG", wantCode: "FRAG"},
		{name: "garbage", input: "not a code", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeCallbackInput(tc.input, testRedirect)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			parsed, err := url.Parse(got)
			if err != nil {
				t.Fatalf("parse %q: %v", got, err)
			}
			if parsed.Host != "localhost:54546" || parsed.Path != "/oauth2redirect" {
				t.Fatalf("callback not anchored on redirect uri: %s", got)
			}
			if code := parsed.Query().Get("code"); code != tc.wantCode {
				t.Fatalf("code = %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestNormalizeCallbackInputEmpty(t *testing.T) {
	t.Parallel()

	got, err := NormalizeCallbackInput("   ", testRedirect)
	if err != nil || got != "" {
		t.Fatalf("got %q, %v; want empty", got, err)
	}
}

func TestWriteConfigTemplateLoads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteConfigTemplate(path, false); err != nil {
		t.Fatalf("WriteConfigTemplate: %v", err)
	}
	if err := WriteConfigTemplate(path, false); err == nil {
		t.Fatal("expected an error for an existing file")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LoginURL != config.DefaultLoginURL || cfg.CallbackPort != config.DefaultCallbackPort {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
