package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	iopkg "github.com/yourorg/fast5-fetcher/internal/iopkg"
)

// partSize keeps a typical multi-hundred-MB fast5 to a handful of parts.
const partSize = 32 << 20

// S3Client copies extracted files into a bucket with the multipart upload manager.
type S3Client struct {
	uploader *manager.Uploader
}

// NewS3 shares client construction (and its MinIO env handling) with iopkg.
func NewS3(ctx context.Context) (*S3Client, error) {
	client, err := iopkg.NewS3Client(ctx)
	if err != nil {
		return nil, err
	}
	up := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
		u.Concurrency = 4
	})
	return &S3Client{uploader: up}, nil
}

// ParseS3 splits s3://bucket/key. Both parts must be non-empty; the key is kept verbatim.
func ParseS3(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 uri needs a bucket and an object key: %q", uri)
	}
	return bucket, key, nil
}

func (s *S3Client) Put(ctx context.Context, uri string, body io.Reader) (string, error) {
	bucket, key, err := ParseS3(uri)
	if err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{Bucket: &bucket, Key: &key, Body: body}
	if _, err := s.uploader.Upload(ctx, in); err != nil {
		return "", fmt.Errorf("upload %s: %w", uri, err)
	}
	return uri, nil
}

// PutFile uploads the local file at path to uri through store.
func PutFile(ctx context.Context, store ObjectStore, path, uri string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return store.Put(ctx, uri, f)
}
