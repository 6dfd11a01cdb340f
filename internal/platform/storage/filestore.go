// Package storage provides the Cloud Storage backed blob store used for
// operator portfolio assets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

var (
	errInvalidBucket  = errors.New("storage: bucket name is required")
	errInvalidObject  = errors.New("storage: object name is required")
	errMissingContent = errors.New("storage: content type is required")
)

// Bucket is the slice of the Cloud Storage surface the file store relies on.
type Bucket interface {
	Upload(ctx context.Context, objectName string, contentType string, data []byte) error
	Remove(ctx context.Context, objectName string) error
}

// FileStore stores and removes blobs in a single bucket. Object names double
// as the stored references handed back to callers.
type FileStore struct {
	bucket Bucket
}

// NewFileStore wraps a Bucket into the store used by the operator service.
func NewFileStore(bucket Bucket) (*FileStore, error) {
	if bucket == nil {
		return nil, errInvalidBucket
	}
	return &FileStore{bucket: bucket}, nil
}

func (s *FileStore) UploadFile(ctx context.Context, objectName string, contentType string, data []byte) (string, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return "", errInvalidObject
	}
	if strings.TrimSpace(contentType) == "" {
		return "", errMissingContent
	}
	if err := s.bucket.Upload(ctx, objectName, contentType, data); err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", objectName, err)
	}
	return objectName, nil
}

// DeleteFile removes the object; deleting an already-absent object succeeds.
func (s *FileStore) DeleteFile(ctx context.Context, objectName string) error {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return errInvalidObject
	}
	if err := s.bucket.Remove(ctx, objectName); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("storage: delete %s: %w", objectName, err)
	}
	return nil
}

// gcsBucket adapts *gcs.BucketHandle to the Bucket interface.
type gcsBucket struct {
	handle *gcs.BucketHandle
}

// NewGCSBucket wraps a Cloud Storage bucket handle.
func NewGCSBucket(client *gcs.Client, bucketName string) (Bucket, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	if strings.TrimSpace(bucketName) == "" {
		return nil, errInvalidBucket
	}
	return &gcsBucket{handle: client.Bucket(bucketName)}, nil
}

func (b *gcsBucket) Upload(ctx context.Context, objectName string, contentType string, data []byte) error {
	w := b.handle.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *gcsBucket) Remove(ctx context.Context, objectName string) error {
	return b.handle.Object(objectName).Delete(ctx)
}
