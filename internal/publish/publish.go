// Package publish uploads a verified transfer tree to object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrMissingBucket = errors.New("publish: bucket does not exist")

// Store is the slice of an S3 client the publisher needs.
type Store interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	PutFile(ctx context.Context, bucket, key, path, contentType string) (int64, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// MinioStore adapts *minio.Client to Store.
type MinioStore struct {
	client *minio.Client
}

func NewMinioStore(cfg Config) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

func (s *MinioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func (s *MinioStore) PutFile(ctx context.Context, bucket, key, path, contentType string) (int64, error) {
	info, err := s.client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Publisher copies every regular file directly under a transfer directory
// to {bucket}/{prefix}/{run id}/{name}.
type Publisher struct {
	Store  Store
	Bucket string
	Prefix string
	Log    *slog.Logger
}

// Result lists the uploaded object keys in name order.
type Result struct {
	Keys  []string
	Bytes int64
}

func (p *Publisher) Publish(ctx context.Context, runID, dir string) (Result, error) {
	var res Result
	ok, err := p.Store.BucketExists(ctx, p.Bucket)
	if err != nil {
		return res, fmt.Errorf("bucket %s: %w", p.Bucket, err)
	}
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrMissingBucket, p.Bucket)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		key := ObjectKey(p.Prefix, runID, e.Name())
		n, err := p.Store.PutFile(ctx, p.Bucket, key, filepath.Join(dir, e.Name()), contentType(e.Name()))
		if err != nil {
			return res, fmt.Errorf("upload %s: %w", key, err)
		}
		p.Log.Info("published", "bucket", p.Bucket, "key", key, "bytes", n)
		res.Keys = append(res.Keys, key)
		res.Bytes += n
	}
	return res, nil
}

// ObjectKey joins prefix, run id and file name with "/"; an empty prefix is dropped.
func ObjectKey(prefix, runID, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(runID, name)
	}
	return path.Join(prefix, runID, name)
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".tar"):
		return "application/x-tar"
	case strings.HasSuffix(name, ".md5"), strings.HasSuffix(name, ".sha512"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
