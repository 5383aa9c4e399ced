package storage_test

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/verdance/verdance/platform/internal/storage"
)

const testBucket = "verdance-test"

// s3Env returns connection settings from the environment, skipping the test
// when S3_ENDPOINT or the keys are unset.
func s3Env(t *testing.T) storage.S3Config {
	t.Helper()

	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_ENDPOINT not set, skipping integration test")
	}
	accessKey := os.Getenv("S3_ACCESS_KEY")
	if accessKey == "" {
		t.Skip("S3_ACCESS_KEY not set, skipping integration test")
	}
	secretKey := os.Getenv("S3_SECRET_KEY")
	if secretKey == "" {
		t.Skip("S3_SECRET_KEY not set, skipping integration test")
	}
	return storage.S3Config{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    testBucket,
	}
}

// testClient returns a raw minio client for seeding the test bucket. The
// bucket is created if needed and emptied before returning.
func testClient(t *testing.T, cfg storage.S3Config) *minio.Client {
	t.Helper()

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Fatalf("create minio client: %v", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, testBucket)
	if err != nil {
		t.Fatalf("check bucket: %v", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, testBucket, minio.MakeBucketOptions{}); err != nil {
			t.Fatalf("make bucket: %v", err)
		}
	}

	for obj := range client.ListObjects(ctx, testBucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			t.Fatalf("list objects for cleanup: %v", obj.Err)
		}
		if err := client.RemoveObject(ctx, testBucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			t.Fatalf("remove object %s: %v", obj.Key, err)
		}
	}
	return client
}

func putObject(t *testing.T, client *minio.Client, key, content string) {
	t.Helper()
	_, err := client.PutObject(context.Background(), testBucket, key,
		bytes.NewReader([]byte(content)), int64(len(content)), minio.PutObjectOptions{})
	if err != nil {
		t.Fatalf("put object %s: %v", key, err)
	}
}

// testSource seeds objects and returns a source over the test bucket.
func testSource(t *testing.T, cfg storage.S3Config, objects map[string]string) (*storage.S3Source, *minio.Client) {
	t.Helper()

	env := s3Env(t)
	cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Bucket = env.Endpoint, env.AccessKey, env.SecretKey, env.Bucket

	client := testClient(t, cfg)
	for key, content := range objects {
		putObject(t, client, key, content)
	}

	source, err := storage.NewS3Source(context.Background(), cfg)
	if err != nil {
		t.Fatalf("create s3 source: %v", err)
	}
	return source, client
}
