package storage

import (
	"context"
	"io"
)

// ObjectStore receives extracted files when a run copies its output to object storage.
type ObjectStore interface {
	// Put writes content to the given URI (s3://bucket/key); returns final URI.
	Put(ctx context.Context, uri string, body io.Reader) (string, error)
}
