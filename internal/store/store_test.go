package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
)

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestNormalizeID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "infomaniak-42.json", want: "infomaniak-42.json"},
		{in: "/team/infomaniak-42.json", want: "team/infomaniak-42.json"},
		{in: `team\infomaniak-42.json`, want: "team/infomaniak-42.json"},
		{in: "  ", wantErr: true},
		{in: "../secret.json", wantErr: true},
		{in: "a/../../b.json", wantErr: true},
	}
	for _, tc := range cases {
		got, err := normalizeID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("normalizeID(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("normalizeID(%q) = %q, %v, want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestRecordIDDefaultsToUserID(t *testing.T) {
	t.Parallel()

	token, err := infomaniak.ParseApiToken([]byte(`{"access_token":"a","scope":"s","token_type":"Bearer","user_id":42}`))
	if err != nil {
		t.Fatalf("ParseApiToken: %v", err)
	}
	record := &sdkAuth.Record{Token: token}
	id, err := recordID(record)
	if err != nil || id != "infomaniak-42.json" || record.ID != id {
		t.Fatalf("recordID = %q, %v (record.ID %q)", id, err, record.ID)
	}
}

func TestFullTableName(t *testing.T) {
	t.Parallel()

	if got := fullTableName("", "infomaniak_tokens"); got != `"infomaniak_tokens"` {
		t.Fatalf("got %s", got)
	}
	if got := fullTableName("auth", `we"ird`); got != `"auth"."we""ird"` {
		t.Fatalf("got %s", got)
	}
}

func TestParseObjectEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		endpoint string
		ssl      bool
		wantErr  bool
	}{
		{in: "s3.pub1.infomaniak.cloud", endpoint: "s3.pub1.infomaniak.cloud", ssl: true},
		{in: "http://127.0.0.1:9000/", endpoint: "127.0.0.1:9000", ssl: false},
		{in: "https://s3.example.test/base/", endpoint: "s3.example.test/base", ssl: true},
		{in: "ftp://s3.example.test", wantErr: true},
		{in: "https://", wantErr: true},
	}
	for _, tc := range cases {
		endpoint, ssl, err := ParseObjectEndpoint(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseObjectEndpoint(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || endpoint != tc.endpoint || ssl != tc.ssl {
			t.Errorf("ParseObjectEndpoint(%q) = %q, %v, %v", tc.in, endpoint, ssl, err)
		}
	}
}

func TestPrefixedKey(t *testing.T) {
	t.Parallel()

	if got := prefixedKey("", "tokens/a.json"); got != "tokens/a.json" {
		t.Fatalf("got %s", got)
	}
	if got := prefixedKey("team", "/tokens/a.json"); got != "team/tokens/a.json" {
		t.Fatalf("got %s", got)
	}
}

func TestFromEnvWithoutRemoteStore(t *testing.T) {
	t.Parallel()

	store, err := FromEnv(context.Background(), mapLookup(map[string]string{"PGSTORE_DSN": "  "}))
	if err != nil || store != nil {
		t.Fatalf("FromEnv = %v, %v", store, err)
	}
}

func TestObjectStoreConfigFromEnv(t *testing.T) {
	t.Parallel()

	cfg, err := objectStoreConfigFromEnv("http://minio.local:9000", mapLookup(map[string]string{
		"OBJECTSTORE_BUCKET":     "tokens",
		"objectstore_access_key": "access",
		"OBJECTSTORE_SECRET_KEY": "secret",
	}))
	if err != nil {
		t.Fatalf("objectStoreConfigFromEnv: %v", err)
	}
	if cfg.Endpoint != "minio.local:9000" || cfg.UseSSL || cfg.Bucket != "tokens" || cfg.AccessKey != "access" || !cfg.PathStyle {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err = NewObjectTokenStore(ObjectStoreConfig{Endpoint: cfg.Endpoint, Bucket: "b"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}

// storeContract exercises a live store. It runs against real services only.
func storeContract(t *testing.T, store sdkAuth.Store) {
	t.Helper()
	ctx := context.Background()
	token, err := infomaniak.ParseApiToken([]byte(`{"access_token":"contract-access","refresh_token":"contract-refresh","expires_in":3600,"scope":"s","token_type":"Bearer","user_id":987654}`))
	if err != nil {
		t.Fatal(err)
	}
	record := &sdkAuth.Record{Token: token, ClientID: "client-1", AccessType: "offline"}
	if _, err = store.Save(ctx, record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Cleanup(func() { _ = store.Delete(context.Background(), record.ID) })

	loaded, err := store.Load(ctx, record.ID)
	if err != nil || loaded.Token.AccessToken != "contract-access" || loaded.ClientID != "client-1" {
		t.Fatalf("Load = %+v, %v", loaded, err)
	}
	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, r := range records {
		found = found || r.ID == record.ID
	}
	if !found {
		t.Fatalf("List does not contain %s", record.ID)
	}
	if err = store.Delete(ctx, record.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err = store.Load(ctx, record.ID); !errors.Is(err, sdkAuth.ErrRecordNotFound) {
		t.Fatalf("Load after delete: %v", err)
	}
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("PGSTORE_TEST_DSN")
	if dsn == "" {
		t.Skip("PGSTORE_TEST_DSN not set")
	}
	pgStore, err := NewPostgresStore(context.Background(), PostgresStoreConfig{DSN: dsn, TokenTable: "infomaniak_tokens_test"})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(func() { _ = pgStore.Close() })
	storeContract(t, pgStore)
}

func TestObjectStoreContract(t *testing.T) {
	endpoint := os.Getenv("OBJECTSTORE_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("OBJECTSTORE_TEST_ENDPOINT not set")
	}
	cfg, err := objectStoreConfigFromEnv(endpoint, func(key string) (string, bool) {
		return os.LookupEnv(strings.Replace(key, "OBJECTSTORE_", "OBJECTSTORE_TEST_", 1))
	})
	if err != nil {
		t.Fatal(err)
	}
	objectStore, err := NewObjectTokenStore(cfg)
	if err != nil {
		t.Fatalf("NewObjectTokenStore: %v", err)
	}
	if err = objectStore.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	storeContract(t, objectStore)
}
