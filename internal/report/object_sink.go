package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/leonardosantosdev/imdb-analytics/internal/config"
)

// ObjectSink uploads both artifacts of a report to an S3-compatible bucket
// under <prefix>/<name>.csv and <prefix>/<name>.json.
type ObjectSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectSink creates a MinIO/S3 client from config and ensures the bucket exists.
func NewObjectSink(ctx context.Context, cfg config.ObjectStoreConfig) (*ObjectSink, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &ObjectSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key returns the object key of a report artifact
func (s *ObjectSink) Key(name, ext string) string {
	return path.Join(s.prefix, name+"."+ext)
}

func (s *ObjectSink) Write(ctx context.Context, r *Report, meta Meta) error {
	csvData, err := EncodeCSV(r)
	if err != nil {
		return err
	}
	jsonData, err := EncodeJSON(r, meta)
	if err != nil {
		return err
	}

	if err := s.put(ctx, s.Key(r.Name, "csv"), csvData, "text/csv"); err != nil {
		return err
	}
	return s.put(ctx, s.Key(r.Name, "json"), jsonData, "application/json")
}

func (s *ObjectSink) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
