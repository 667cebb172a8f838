// Package avatar stores profile images in an S3 compatible bucket.
package avatar

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rememberme/api/internal/apperr"
)

// MaxSize is the largest accepted image in bytes.
const MaxSize = 5 << 20

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
}

// Open connects to the bucket, creating it when missing.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
		log.Info("created avatar bucket", "bucket", opts.Bucket)
	}
	return &Store{client: client, bucket: opts.Bucket}, nil
}

// ObjectName is the object key of a user's profile image.
func ObjectName(uid string) string {
	return "users/" + uid + "/profile.jpg"
}

// Detect checks size and format and returns the content type.
func Detect(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Invalid("profile image is empty")
	}
	if len(data) > MaxSize {
		return "", apperr.Invalid("profile image is %d bytes", len(data))
	}
	contentType := http.DetectContentType(data)
	if !allowedTypes[contentType] {
		return "", apperr.Invalid("profile image type %s", contentType)
	}
	return contentType, nil
}

// Put uploads data as the user's profile image and returns its URL.
func (s *Store) Put(ctx context.Context, uid string, data []byte) (string, error) {
	contentType, err := Detect(data)
	if err != nil {
		return "", err
	}
	object := ObjectName(uid)
	_, err = s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", apperr.Unavailable(fmt.Errorf("put %s: %w", object, err))
	}
	return s.client.EndpointURL().JoinPath(s.bucket, object).String(), nil
}

// Remove deletes the user's profile image. A missing image is not an error.
func (s *Store) Remove(ctx context.Context, uid string) error {
	object := ObjectName(uid)
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Unavailable(fmt.Errorf("remove %s: %w", object, err))
	}
	return nil
}
