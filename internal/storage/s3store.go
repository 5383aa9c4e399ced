// Package storage reads catalog and user snapshots from S3-compatible object
// storage. Objects are JSON or YAML documents decoded with the same rules as
// local catalog files.
package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/domain"
)

// Default timeouts for S3 operations.
const (
	DefaultMetadataTimeout = 10 * time.Second // Stat and bucket checks
	DefaultDataTimeout     = 60 * time.Second // Get (data transfer)
)

// DefaultCatalogKey is the object read when S3Config.CatalogKey is empty.
const DefaultCatalogKey = "catalog.json"

// S3Config holds connection, object and timeout settings.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// CatalogKey is the catalog document object. Defaults to catalog.json.
	// A .yaml or .yml suffix selects YAML decoding.
	CatalogKey string

	// UsersKey is the optional users document object. Empty means every
	// lookup reports catalog.ErrUserNotFound.
	UsersKey string

	// MetadataTimeout is the context timeout for stat and bucket checks.
	// Defaults to 10s if zero.
	MetadataTimeout time.Duration

	// DataTimeout is the context timeout for object reads. Defaults to 60s
	// if zero.
	DataTimeout time.Duration
}

// S3Source implements catalog.Source and catalog.UserSource over objects in
// one bucket. Decoded documents are kept per object ETag, so an unchanged
// object costs one stat per load.
type S3Source struct {
	client          *minio.Client
	bucket          string
	catalogKey      string
	usersKey        string
	metadataTimeout time.Duration
	dataTimeout     time.Duration

	mu       sync.Mutex
	snapshot etagged[*catalog.Snapshot]
	users    etagged[map[string]domain.User]
}

type etagged[T any] struct {
	etag  string
	value T
}

// NewS3Source creates an S3Source connected to cfg.Endpoint. The bucket must
// already exist; the source never writes.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	metadataTimeout := cfg.MetadataTimeout
	if metadataTimeout == 0 {
		metadataTimeout = DefaultMetadataTimeout
	}
	dataTimeout := cfg.DataTimeout
	if dataTimeout == 0 {
		dataTimeout = DefaultDataTimeout
	}
	catalogKey := cfg.CatalogKey
	if catalogKey == "" {
		catalogKey = DefaultCatalogKey
	}

	// ResponseHeaderTimeout bounds the wait for the first byte, not the full
	// download.
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: metadataTimeout,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &S3Source{
		client:          client,
		bucket:          cfg.Bucket,
		catalogKey:      catalogKey,
		usersKey:        cfg.UsersKey,
		metadataTimeout: metadataTimeout,
		dataTimeout:     dataTimeout,
	}

	if err := s.checkBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// withMetadataTimeout returns a child context with the metadata operation timeout.
// If the parent already has an earlier deadline, that deadline is preserved.
func (s *S3Source) withMetadataTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.metadataTimeout)
}

// withDataTimeout returns a child context with the data operation timeout.
// If the parent already has an earlier deadline, that deadline is preserved.
func (s *S3Source) withDataTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.dataTimeout)
}

func (s *S3Source) checkBucket(ctx context.Context) error {
	ctx, cancel := s.withMetadataTimeout(ctx)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("s3 bucket %q does not exist", s.bucket)
	}
	return nil
}

// LoadSnapshot reads and normalizes the catalog object. A missing object is
// an error.
func (s *S3Source) LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	etag, err := s.stat(ctx, s.catalogKey)
	if err != nil {
		return nil, err
	}
	if etag == "" {
		return nil, fmt.Errorf("catalog object %s/%s not found", s.bucket, s.catalogKey)
	}

	s.mu.Lock()
	cached := s.snapshot
	s.mu.Unlock()
	if cached.etag == etag && cached.value != nil {
		return cached.value, nil
	}

	data, err := s.read(ctx, s.catalogKey)
	if err != nil {
		return nil, err
	}
	raw, err := catalog.DecodeRaw(data, catalog.FormatFromPath(s.catalogKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.catalogKey, err)
	}
	snap := catalog.Build(raw)

	s.mu.Lock()
	s.snapshot = etagged[*catalog.Snapshot]{etag: etag, value: snap}
	s.mu.Unlock()
	return snap, nil
}

// GetUser looks email up in the users object. A missing object or a missing
// entry returns catalog.ErrUserNotFound.
func (s *S3Source) GetUser(ctx context.Context, email string) (domain.User, error) {
	if s.usersKey == "" {
		return domain.User{}, fmt.Errorf("%w: %s", catalog.ErrUserNotFound, email)
	}
	users, err := s.loadUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	u, ok := users[domain.Canonical(email)]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %s", catalog.ErrUserNotFound, email)
	}
	return u, nil
}

func (s *S3Source) loadUsers(ctx context.Context) (map[string]domain.User, error) {
	etag, err := s.stat(ctx, s.usersKey)
	if err != nil {
		return nil, err
	}
	if etag == "" {
		return map[string]domain.User{}, nil
	}

	s.mu.Lock()
	cached := s.users
	s.mu.Unlock()
	if cached.etag == etag && cached.value != nil {
		return cached.value, nil
	}

	data, err := s.read(ctx, s.usersKey)
	if err != nil {
		return nil, err
	}
	list, err := catalog.DecodeUsers(data, catalog.FormatFromPath(s.usersKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.usersKey, err)
	}
	users := make(map[string]domain.User, len(list))
	for _, u := range list {
		users[domain.Canonical(u.Email)] = u
	}

	s.mu.Lock()
	s.users = etagged[map[string]domain.User]{etag: etag, value: users}
	s.mu.Unlock()
	return users, nil
}

// stat returns the object's ETag, or "" if it does not exist.
func (s *S3Source) stat(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.withMetadataTimeout(ctx)
	defer cancel()

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat object %s: %w", key, err)
	}
	return info.ETag, nil
}

func (s *S3Source) read(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.withDataTimeout(ctx)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}
