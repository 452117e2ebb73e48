package iopkg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3iface is the minimal subset of s3 client methods we use; allows test fakes.
type s3iface interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an s3 client from the default AWS config chain.
// Honors AWS_ENDPOINT_URL_S3 and AWS_S3_FORCE_PATH_STYLE for MinIO.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("AWS_ENDPOINT_URL_S3"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		if strings.EqualFold(os.Getenv("AWS_S3_FORCE_PATH_STYLE"), "true") {
			o.UsePathStyle = true
		}
	}), nil
}

// newS3Client is overridden in tests.
var newS3Client = func(ctx context.Context) (s3iface, error) {
	return NewS3Client(ctx)
}

// IsRemote reports whether uri names an object store location rather than a local path.
func IsRemote(uri string) bool {
	return strings.Contains(uri, "://") && !strings.HasPrefix(uri, "file://")
}

// LocalPath strips an optional file:// scheme.
func LocalPath(uri string) string { return strings.TrimPrefix(uri, "file://") }

// Join appends name to a directory path or an s3:// prefix.
func Join(base, name string) string {
	if IsRemote(base) {
		return strings.TrimSuffix(base, "/") + "/" + name
	}
	return filepath.Join(LocalPath(base), name)
}

// Open returns a ReadCloser and (if known) size for file:// or s3:// URIs.
func Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if !IsRemote(uri) {
		f, err := os.Open(LocalPath(uri))
		if err != nil {
			return nil, 0, err
		}
		st, _ := f.Stat()
		var sz int64
		if st != nil {
			sz = st.Size()
		}
		return f, sz, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, 0, err
	}
	switch u.Scheme {
	case "s3":
		cl, err := newS3Client(ctx)
		if err != nil {
			return nil, 0, err
		}
		resp, err := cl.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(u.Host), Key: aws.String(strings.TrimPrefix(u.Path, "/")),
		})
		if err != nil {
			return nil, 0, err
		}
		var sz int64
		if resp.ContentLength != nil {
			sz = *resp.ContentLength
		}
		return resp.Body, sz, nil
	default:
		return nil, 0, errors.New("unsupported scheme: " + u.Scheme)
	}
}

func OpenReader(ctx context.Context, uri string) (io.ReadCloser, error) {
	rc, _, err := Open(ctx, uri)
	return rc, err
}

// Create creates a local file, making parent directories as needed.
func Create(path string) (io.Writer, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

// CreateWriter supports file:// and s3://. S3 objects are buffered and uploaded on Close.
func CreateWriter(ctx context.Context, uri string) (io.Writer, io.Closer, error) {
	if !IsRemote(uri) {
		return Create(LocalPath(uri))
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, nil, err
	}
	switch u.Scheme {
	case "s3":
		var buf bytes.Buffer
		done := false
		return &buf, closerFunc(func() error {
			if done {
				return nil
			}
			done = true
			cl, err := newS3Client(ctx)
			if err != nil {
				return err
			}
			_, err = cl.PutObject(ctx, &s3.PutObjectInput{
				Bucket: aws.String(u.Host),
				Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
				Body:   bytes.NewReader(buf.Bytes()),
			})
			return err
		}), nil
	default:
		return nil, nil, errors.New("unsupported scheme for CreateWriter: " + u.Scheme)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
