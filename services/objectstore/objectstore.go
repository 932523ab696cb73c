package objectstore

import (
	"context"
	"io"
	"time"
)

// Object describes one stored object returned by a listing.
type Object struct {
	Key              string
	Size             int64
	LastModifiedTime time.Time
}

// ObjectStore is the storage collaborator the pipeline reads its exports from and
// writes platform-ready files to. Implementations must treat written objects as
// immutable; partitioned output is only ever created, never rewritten in place.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, body []byte) error
	Size(ctx context.Context, bucket, key string) (int64, error)
	Delete(ctx context.Context, bucket, key string) error
	ListWithPrefix(ctx context.Context, bucket, prefix string) ([]Object, error)
}
