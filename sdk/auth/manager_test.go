package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/config"
)

type stubAuthenticator struct {
	record *Record
	err    error
}

func (s stubAuthenticator) Provider() string { return ProviderInfomaniak }

func (s stubAuthenticator) Login(context.Context, *config.Config, *LoginOptions) (*Record, error) {
	return s.record, s.err
}

func (s stubAuthenticator) RefreshLead() *time.Duration { return nil }

func TestManagerLoginPersistsRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileTokenStore("")
	mgr := NewManager(store, stubAuthenticator{record: &Record{Token: testToken(t, storedTokenBody)}})

	record, path, err := mgr.Login(context.Background(), ProviderInfomaniak, &config.Config{AuthDir: dir}, nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if path != filepath.Join(dir, "infomaniak-42.json") || record.Path != path {
		t.Fatalf("saved to %q", path)
	}
}

func TestManagerLoginErrors(t *testing.T) {
	t.Parallel()

	mgr := NewManager(nil)
	if _, _, err := mgr.Login(context.Background(), "unknown", &config.Config{}, nil); err == nil {
		t.Fatal("expected error for unregistered provider")
	}

	boom := errors.New("boom")
	mgr.Register(stubAuthenticator{err: boom})
	if _, _, err := mgr.Login(context.Background(), ProviderInfomaniak, &config.Config{}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected login error, got %v", err)
	}

	mgr.Register(stubAuthenticator{record: &Record{Token: testToken(t, storedTokenBody)}})
	record, path, err := mgr.Login(context.Background(), ProviderInfomaniak, &config.Config{}, nil)
	if err != nil || record == nil || path != "" {
		t.Fatalf("without store: record=%v path=%q err=%v", record, path, err)
	}
}
