package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
	log "github.com/sirupsen/logrus"
)

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// first returns the first non-empty value among keys.
func (lookup LookupFunc) first(keys ...string) string {
	for _, key := range keys {
		if value, ok := lookup(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// FromEnv builds the remote token store selected by the environment.
// PGSTORE_DSN selects PostgreSQL, OBJECTSTORE_ENDPOINT selects object storage.
// It returns nil when neither is set, leaving the file store in charge.
func FromEnv(ctx context.Context, lookup LookupFunc) (sdkAuth.Store, error) {
	if dsn := lookup.first("PGSTORE_DSN", "pgstore_dsn"); dsn != "" {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		pgStore, err := NewPostgresStore(ctx, PostgresStoreConfig{
			DSN:        dsn,
			Schema:     lookup.first("PGSTORE_SCHEMA", "pgstore_schema"),
			TokenTable: lookup.first("PGSTORE_TABLE", "pgstore_table"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres token store: %w", err)
		}
		log.Info("postgres-backed token store enabled")
		return pgStore, nil
	}

	if endpoint := lookup.first("OBJECTSTORE_ENDPOINT", "objectstore_endpoint"); endpoint != "" {
		cfg, err := objectStoreConfigFromEnv(endpoint, lookup)
		if err != nil {
			return nil, err
		}
		objectStore, err := NewObjectTokenStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object token store: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err = objectStore.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		log.Infof("object-backed token store enabled, bucket: %s", cfg.Bucket)
		return objectStore, nil
	}
	return nil, nil
}

func objectStoreConfigFromEnv(endpoint string, lookup LookupFunc) (ObjectStoreConfig, error) {
	resolved, useSSL, err := ParseObjectEndpoint(endpoint)
	if err != nil {
		return ObjectStoreConfig{}, err
	}
	return ObjectStoreConfig{
		Endpoint:  resolved,
		Bucket:    lookup.first("OBJECTSTORE_BUCKET", "objectstore_bucket"),
		AccessKey: lookup.first("OBJECTSTORE_ACCESS_KEY", "objectstore_access_key"),
		SecretKey: lookup.first("OBJECTSTORE_SECRET_KEY", "objectstore_secret_key"),
		Region:    lookup.first("OBJECTSTORE_REGION", "objectstore_region"),
		Prefix:    lookup.first("OBJECTSTORE_PREFIX", "objectstore_prefix"),
		UseSSL:    useSSL,
		PathStyle: true,
	}, nil
}
