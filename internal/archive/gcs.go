package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	gcsapi "google.golang.org/api/storage/v1"
)

type gcsObjectStore struct {
	bucketName string
	service    *gcsapi.Service
}

// NewGCSObjectStore checks that the bucket is readable with the ambient
// Google credentials before returning.
func NewGCSObjectStore(ctx context.Context, bucketName string) (ObjectStore, error) {
	bucket := strings.TrimSpace(bucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	service, err := gcsapi.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs service: %w", err)
	}
	if _, err := service.Buckets.Get(bucket).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("read gcs bucket attrs: %w", err)
	}
	return &gcsObjectStore{bucketName: bucket, service: service}, nil
}

func (s *gcsObjectStore) Backend() string {
	return "gcs"
}

func (s *gcsObjectStore) PutObject(ctx context.Context, objectPath, contentType string, data []byte) error {
	name, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}
	object := &gcsapi.Object{
		Name:         name,
		ContentType:  contentTypeOrDefault(contentType),
		CacheControl: "private, max-age=0",
	}
	if _, err := s.service.Objects.Insert(s.bucketName, object).Media(bytes.NewReader(data)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write gcs object %q: %w", name, err)
	}
	return nil
}
