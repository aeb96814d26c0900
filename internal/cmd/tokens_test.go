package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	"github.com/Infomaniak/infomaniak-login-go/internal/config"
	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
)

// The commands share the registered token store, so these tests do not run in parallel.

const cmdTokenBody = `{"access_token":"stored-access-token","refresh_token":"stored-refresh-token","expires_in":3600,"scope":"user_info","token_type":"Bearer","user_id":42}`

func setupStore(t *testing.T) (string, *sdkAuth.FileTokenStore) {
	t.Helper()
	dir := t.TempDir()
	store := sdkAuth.NewFileTokenStore(dir)
	sdkAuth.RegisterTokenStore(store)
	t.Cleanup(func() { sdkAuth.RegisterTokenStore(nil) })
	return dir, store
}

func saveToken(t *testing.T, store sdkAuth.Store, body string) *sdkAuth.Record {
	t.Helper()
	token, err := infomaniak.ParseApiToken([]byte(body))
	if err != nil {
		t.Fatalf("ParseApiToken: %v", err)
	}
	record := &sdkAuth.Record{Token: token, ClientID: "client-1", AccessType: "offline", LastRefreshedAt: time.Now()}
	if _, err = store.Save(context.Background(), record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return record
}

func providerServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(srv *httptest.Server, out io.Writer) (*config.Config, *TokenOptions) {
	cfg := &config.Config{
		ClientID:    "client-1",
		LoginURL:    srv.URL,
		RedirectURI: "com.infomaniak.test://oauth2redirect",
		AccessType:  "offline",
	}
	return cfg, &TokenOptions{
		Out:           out,
		authenticator: &sdkAuth.InfomaniakAuthenticator{HTTPClient: srv.Client()},
	}
}

func TestDoRefreshRewritesTokenFile(t *testing.T) {
	dir, store := setupStore(t)
	saveToken(t, store, cmdTokenBody)
	srv := providerServer(t, http.StatusOK, `{"access_token":"refreshed-access","refresh_token":"refreshed-refresh","expires_in":7200,"scope":"user_info","token_type":"Bearer","user_id":42}`)

	var out bytes.Buffer
	cfg, opts := testOptions(srv, &out)
	if err := DoRefresh(context.Background(), cfg, opts); err != nil {
		t.Fatalf("DoRefresh: %v", err)
	}

	record, err := store.Load(context.Background(), "infomaniak-42.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.Token.AccessToken != "refreshed-access" || record.ClientID != "client-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !strings.Contains(out.String(), filepath.Join(dir, "infomaniak-42.json")) {
		t.Fatalf("output = %q", out.String())
	}
}

func TestDoRefreshUsesIssuerStoredWithToken(t *testing.T) {
	_, store := setupStore(t)
	forms := make(chan string, 1)
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		forms <- string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"refreshed-access","refresh_token":"refreshed-refresh","scope":"user_info","token_type":"Bearer","user_id":42}`)
	}))
	t.Cleanup(issuer.Close)

	token, err := infomaniak.ParseApiToken([]byte(cmdTokenBody))
	if err != nil {
		t.Fatalf("ParseApiToken: %v", err)
	}
	stored := &sdkAuth.Record{Token: token, ClientID: "preprod-client", LoginURL: issuer.URL, AccessType: "none"}
	if _, err = store.Save(context.Background(), stored); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// The configuration now points to another server with offline access.
	cfg := &config.Config{
		ClientID:    "client-1",
		LoginURL:    "http://127.0.0.1:1/",
		RedirectURI: "com.infomaniak.test://oauth2redirect",
		AccessType:  "offline",
	}
	opts := &TokenOptions{
		Out:           io.Discard,
		authenticator: &sdkAuth.InfomaniakAuthenticator{HTTPClient: issuer.Client()},
	}
	if err = DoRefresh(context.Background(), cfg, opts); err != nil {
		t.Fatalf("DoRefresh: %v", err)
	}

	form, err := url.ParseQuery(<-forms)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if got := form.Get("duration"); got != "infinite" {
		t.Fatalf("duration = %q, want infinite", got)
	}
	if got := form.Get("client_id"); got != "preprod-client" {
		t.Fatalf("client_id = %q, want preprod-client", got)
	}
	record, err := store.Load(context.Background(), "infomaniak-42.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.AccessType != "none" || record.LoginURL != issuer.URL {
		t.Fatalf("issuer settings lost: access_type=%q login_url=%q", record.AccessType, record.LoginURL)
	}
}

func TestDoRevokeDeletesFileOnlyOnSuccess(t *testing.T) {
	_, store := setupStore(t)
	record := saveToken(t, store, cmdTokenBody)

	failing := providerServer(t, http.StatusUnauthorized, `{"error":"invalid_token"}`)
	cfg, opts := testOptions(failing, io.Discard)
	err := DoRevoke(context.Background(), cfg, opts)
	var apiErr *infomaniak.ApiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ApiError, got %v", err)
	}
	if _, err = os.Stat(record.Path); err != nil {
		t.Fatalf("token file removed after a failed revoke: %v", err)
	}

	ok := providerServer(t, http.StatusOK, "")
	cfg, opts = testOptions(ok, io.Discard)
	if err = DoRevoke(context.Background(), cfg, opts); err != nil {
		t.Fatalf("DoRevoke: %v", err)
	}
	if _, err = os.Stat(record.Path); !os.IsNotExist(err) {
		t.Fatalf("token file still present: %v", err)
	}
}

func TestDoAccessTokenRefreshesExpiringToken(t *testing.T) {
	_, store := setupStore(t)
	saveToken(t, store, strings.Replace(cmdTokenBody, `"expires_in":3600`, `"expires_in":60`, 1))
	srv := providerServer(t, http.StatusOK, `{"access_token":"refreshed-access","refresh_token":"refreshed-refresh","expires_in":7200,"scope":"user_info","token_type":"Bearer","user_id":42}`)

	var out bytes.Buffer
	cfg, opts := testOptions(srv, &out)
	if err := DoAccessToken(context.Background(), cfg, opts); err != nil {
		t.Fatalf("DoAccessToken: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "refreshed-access" {
		t.Fatalf("printed %q", got)
	}
	record, err := store.Load(context.Background(), "infomaniak-42.json")
	if err != nil || record.Token.RefreshToken != "refreshed-refresh" {
		t.Fatalf("refreshed token not saved: %+v, %v", record, err)
	}
}

func TestDoAccessTokenKeepsValidToken(t *testing.T) {
	_, store := setupStore(t)
	saveToken(t, store, cmdTokenBody)
	srv := providerServer(t, http.StatusInternalServerError, `{"error":"server_error"}`)

	var out bytes.Buffer
	cfg, opts := testOptions(srv, &out)
	if err := DoAccessToken(context.Background(), cfg, opts); err != nil {
		t.Fatalf("DoAccessToken: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "stored-access-token" {
		t.Fatalf("printed %q", got)
	}
}

func TestDoShowTruncatesSecrets(t *testing.T) {
	_, store := setupStore(t)
	saveToken(t, store, cmdTokenBody)

	var out bytes.Buffer
	if err := DoShow(context.Background(), &TokenOptions{Out: &out}); err != nil {
		t.Fatalf("DoShow: %v", err)
	}
	text := out.String()
	if strings.Contains(text, "stored-access-token") || strings.Contains(text, "stored-refresh-token") {
		t.Fatalf("secrets printed in full: %s", text)
	}
	if !strings.Contains(text, "stor-*****-oken") || !strings.Contains(text, "User:          42") {
		t.Fatalf("unexpected output: %s", text)
	}
}

func TestLoadRecordSelection(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	if _, err := loadRecord(ctx, &TokenOptions{}); !errors.Is(err, sdkAuth.ErrRecordNotFound) {
		t.Fatalf("empty dir: expected ErrRecordNotFound, got %v", err)
	}

	saveToken(t, store, cmdTokenBody)
	saveToken(t, store, strings.Replace(cmdTokenBody, `"user_id":42`, `"user_id":43`, 1))
	if _, err := loadRecord(ctx, &TokenOptions{}); err == nil || !strings.Contains(err.Error(), "-token-file") {
		t.Fatalf("several files: expected selection error, got %v", err)
	}

	record, err := loadRecord(ctx, &TokenOptions{TokenFile: "infomaniak-43.json"})
	if err != nil || record.Token.UserID != 43 {
		t.Fatalf("explicit file: %v, %v", record, err)
	}
}

func TestDefaultPromptAcceptsEmptyLine(t *testing.T) {
	prompt := defaultPrompt(strings.NewReader("\ncode=abc\n"), io.Discard)
	first, err := prompt("? ")
	if err != nil || first != "" {
		t.Fatalf("first = %q, %v", first, err)
	}
	second, err := prompt("? ")
	if err != nil || second != "code=abc" {
		t.Fatalf("second = %q, %v", second, err)
	}
	if _, err = prompt("? "); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestDoInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := DoInitConfig(path, false, io.Discard); err != nil {
		t.Fatalf("DoInitConfig: %v", err)
	}
	if err := DoInitConfig(path, false, io.Discard); err == nil {
		t.Fatal("expected error for an existing file")
	}
	if err := DoInitConfig(path, true, io.Discard); err != nil {
		t.Fatalf("DoInitConfig overwrite: %v", err)
	}
}
