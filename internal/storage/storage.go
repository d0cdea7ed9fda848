package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/config"
)

// ErrDisabled is returned by every operation when the storage backend is
// configured off. The image pipeline treats it as "nothing stored".
var ErrDisabled = errors.New("object storage disabled")

// ObjectInfo describes one stored object
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// Store is the object storage surface the image pipeline consumes
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// New selects the storage backend from configuration
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "disabled":
		return &Disabled{}, nil
	case "s3", "":
		return newS3(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// S3 provides object storage operations over an S3-compatible endpoint
type S3 struct {
	client     *minio.Client
	bucketName string
}

func newS3(cfg config.StorageConfig) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &S3{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// Put stores an object with its content type and provenance metadata
func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: metadata,
		})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return nil
}

// Get retrieves an object and its stored attributes
func (s *S3) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	object, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer object.Close()

	stat, err := object.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return data, &ObjectInfo{
		Key:         key,
		Size:        stat.Size,
		ContentType: stat.ContentType,
		Metadata:    stat.UserMetadata,
	}, nil
}

// Delete removes an object from storage
func (s *S3) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return nil
}

// Exists reports whether an object is stored
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		var respErr minio.ErrorResponse
		if errors.As(err, &respErr) && respErr.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	return true, nil
}

// List returns the objects stored under a prefix
func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:         object.Key,
			Size:        object.Size,
			ContentType: object.ContentType,
		})
	}

	return objects, nil
}

// Disabled is the no-op backend used when object storage is turned off
type Disabled struct{}

func (d *Disabled) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	return ErrDisabled
}

func (d *Disabled) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	return nil, nil, ErrDisabled
}

func (d *Disabled) Delete(ctx context.Context, key string) error {
	return ErrDisabled
}

func (d *Disabled) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (d *Disabled) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	return nil, nil
}
