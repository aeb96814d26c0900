package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
)

const refreshedTokenBody = `{"access_token":"fresh-access-token","refresh_token":"fresh-refresh-token","expires_in":7200,"scope":"user_info","token_type":"Bearer","user_id":42}`

// newRefreshServer answers token requests with refreshedTokenBody after release
// is closed and counts them.
func newRefreshServer(t *testing.T, release <-chan struct{}) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if release != nil {
			<-release
		}
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"unsupported_grant_type"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, refreshedTokenBody)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, loginURL string) *infomaniak.InfomaniakAuth {
	t.Helper()
	cfg, err := infomaniak.NewConfig("client-1",
		infomaniak.WithLoginURL(loginURL),
		infomaniak.WithRedirectURI("com.infomaniak.test://oauth2redirect"),
		infomaniak.WithAccessType(infomaniak.AccessTypeOffline),
	)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return infomaniak.NewInfomaniakAuth(cfg, &http.Client{Timeout: 5 * time.Second})
}

func expiringRecord(t *testing.T, in time.Duration, refresh bool) *Record {
	t.Helper()
	token := testToken(t, `{"access_token":"old-access-token","expires_in":3600,"scope":"user_info","token_type":"Bearer","user_id":42}`)
	exp := time.Now().Add(in)
	token.ExpirationDate = &exp
	if refresh {
		token.RefreshToken = "old-refresh-token"
	}
	return &Record{ID: "infomaniak-42.json", Token: token}
}

func TestTokenSourceReturnsValidTokenWithoutRequest(t *testing.T) {
	t.Parallel()

	srv, calls := newRefreshServer(t, nil)
	ts, err := NewTokenSource(newTestClient(t, srv.URL), expiringRecord(t, time.Hour, true), nil, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "old-access-token" || calls.Load() != 0 {
		t.Fatalf("token = %q after %d requests", tok.AccessToken, calls.Load())
	}
}

func TestTokenSourceRefreshesOnceForConcurrentCallers(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv, calls := newRefreshServer(t, release)
	store := NewFileTokenStore(t.TempDir())
	ts, err := NewTokenSource(newTestClient(t, srv.URL), expiringRecord(t, time.Minute, true), store, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan string, callers)
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, errToken := ts.TokenContext(context.Background())
			if errToken != nil {
				errs <- errToken
				return
			}
			results <- token.AccessToken
		}()
	}
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)
	close(errs)

	for errToken := range errs {
		t.Fatalf("TokenContext: %v", errToken)
	}
	for access := range results {
		if access != "fresh-access-token" {
			t.Fatalf("access token = %q", access)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("refresh requests = %d, want 1", got)
	}

	current := ts.Current()
	if current.Token.RefreshToken != "fresh-refresh-token" || current.Path == "" {
		t.Fatalf("current record not updated: %+v", current)
	}
	stored, err := store.Load(context.Background(), "infomaniak-42.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored.Token.AccessToken != "fresh-access-token" {
		t.Fatalf("stored access token = %q", stored.Token.AccessToken)
	}
}

func TestTokenSourceExpiredWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	srv, calls := newRefreshServer(t, nil)
	ts, err := NewTokenSource(newTestClient(t, srv.URL), expiringRecord(t, -time.Minute, false), nil, time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}
	if _, err = ts.Token(); !errors.Is(err, infomaniak.ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("no request expected")
	}
}

func TestTokenSourceHTTPClientSetsBearer(t *testing.T) {
	t.Parallel()

	tokenSrv, _ := newRefreshServer(t, nil)
	seen := make(chan string, 1)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(api.Close)

	ts, err := NewTokenSource(newTestClient(t, tokenSrv.URL), expiringRecord(t, time.Hour, true), nil, time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSource: %v", err)
	}
	resp, err := ts.HTTPClient(context.Background()).Get(api.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if got := <-seen; got != "Bearer old-access-token" {
		t.Fatalf("Authorization = %q", got)
	}
}
