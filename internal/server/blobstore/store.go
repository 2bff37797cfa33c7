// Package blobstore keeps uploaded file bytes. S3Store talks to any S3
// compatible service (MinIO in development); MemoryStore backs tests and
// single-process demos.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrPresignUnsupported = errors.New("presigned urls are not supported by this store")

type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// PresignGet returns a temporary URL for a direct download of key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
