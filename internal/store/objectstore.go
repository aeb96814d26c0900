package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const objectStoreTokenPrefix = "tokens"

// ObjectStoreConfig captures configuration for the object storage-backed token store.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// ObjectTokenStore persists token records as JSON objects in an S3-compatible bucket.
type ObjectTokenStore struct {
	client *minio.Client
	cfg    ObjectStoreConfig
	mu     sync.Mutex
}

var _ sdkAuth.Store = (*ObjectTokenStore)(nil)

// NewObjectTokenStore initializes an object storage backed token store.
func NewObjectTokenStore(cfg ObjectStoreConfig) (*ObjectTokenStore, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("object store: access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store: secret key is required")
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}
	return &ObjectTokenStore{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *ObjectTokenStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object store: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("object store: create bucket: %w", err)
	}
	return nil
}

// Save uploads record under its id.
func (s *ObjectTokenStore) Save(ctx context.Context, record *sdkAuth.Record) (string, error) {
	if record == nil || record.Token == nil {
		return "", fmt.Errorf("object store: record is nil")
	}
	id, err := recordID(record)
	if err != nil {
		return "", err
	}
	raw, err := sdkAuth.MarshalRecord(record)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.tokenKey(id)
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("object store: put object %s: %w", key, err)
	}
	record.ID = id
	record.Path = s.location(key)
	return record.Path, nil
}

// Load downloads the record stored under id.
func (s *ObjectTokenStore) Load(ctx context.Context, id string) (*sdkAuth.Record, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	return s.readObject(ctx, id, s.tokenKey(id))
}

// List returns every decodable token object below the prefix, sorted by id.
func (s *ObjectTokenStore) List(ctx context.Context) ([]*sdkAuth.Record, error) {
	prefix := s.tokenKey("")
	objectCh := s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	records := make([]*sdkAuth.Record, 0, 8)
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("object store: list token objects: %w", object.Err)
		}
		id := strings.TrimPrefix(object.Key, prefix)
		if id == "" || strings.HasSuffix(id, "/") || !strings.HasSuffix(strings.ToLower(id), ".json") {
			continue
		}
		record, err := s.readObject(ctx, id, object.Key)
		if err != nil {
			log.WithField("key", object.Key).Warnf("object store: skipping token: %v", err)
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Delete removes the object of id. A missing object is not an error.
func (s *ObjectTokenStore) Delete(ctx context.Context, id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.tokenKey(id)
	if err = s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isObjectNotFound(err) {
			return nil
		}
		return fmt.Errorf("object store: delete object %s: %w", key, err)
	}
	return nil
}

func (s *ObjectTokenStore) readObject(ctx context.Context, id, key string) (*sdkAuth.Record, error) {
	object, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("object store: fetch %s: %w", key, err)
	}
	defer object.Close()
	data, err := io.ReadAll(object)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, fmt.Errorf("%w: %s", sdkAuth.ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("object store: read %s: %w", key, err)
	}
	record, err := sdkAuth.UnmarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("object store: %s: %w", key, err)
	}
	record.ID = id
	record.Path = s.location(key)
	return record, nil
}

func (s *ObjectTokenStore) tokenKey(id string) string {
	return prefixedKey(s.cfg.Prefix, objectStoreTokenPrefix+"/"+id)
}

func (s *ObjectTokenStore) location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, key)
}

func prefixedKey(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return strings.TrimLeft(prefix+"/"+key, "/")
}

// ParseObjectEndpoint splits an endpoint given as host[:port][/path] or as an
// http(s) URL into the minio endpoint and the TLS setting.
func ParseObjectEndpoint(endpoint string) (string, bool, error) {
	resolved := strings.TrimSpace(endpoint)
	useSSL := true
	if strings.Contains(resolved, "://") {
		parsed, err := url.Parse(resolved)
		if err != nil {
			return "", false, fmt.Errorf("object store: parse endpoint %q: %w", endpoint, err)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
		default:
			return "", false, fmt.Errorf("object store: unsupported scheme %q (only http and https are allowed)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("object store: endpoint %q is missing host information", endpoint)
		}
		resolved = parsed.Host
		if parsed.Path != "" && parsed.Path != "/" {
			resolved = strings.TrimSuffix(parsed.Host+parsed.Path, "/")
		}
	}
	resolved = strings.TrimRight(resolved, "/")
	if resolved == "" {
		return "", false, fmt.Errorf("object store: endpoint is required")
	}
	return resolved, useSSL, nil
}

func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
