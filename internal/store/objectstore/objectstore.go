// Package objectstore provides a BlobStorage implementation on any S3
// compatible object store through minio-go. Objects live under a fixed key
// prefix so reconciliation never touches unrelated keys in a shared bucket.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/store"
)

var _ store.BlobStorage = (*BlobStore)(nil)

// DefaultPrefix is the key prefix blobs are written under.
const DefaultPrefix = "secrets/"

// Options configures the object store connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

// BlobStore implements store.BlobStorage on a bucket.
type BlobStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the object store and creates the bucket if needed.
func New(ctx context.Context, opts Options) (*BlobStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &BlobStore{client: client, bucket: opts.Bucket, prefix: prefix}, nil
}

func (b *BlobStore) key(handle string) string { return b.prefix + handle }

// Put uploads exactly size bytes from r.
func (b *BlobStore) Put(ctx context.Context, r io.Reader, size int64, fileName string) (string, error) {
	handle := store.NewBlobHandle(fileName)
	_, err := b.client.PutObject(ctx, b.bucket, b.key(handle), r, size, minio.PutObjectOptions{
		ContentType: domain.MimeForFile(fileName),
	})
	if err != nil {
		return "", err
	}
	return handle, nil
}

// Open streams the object, asking the server for a byte range when only part
// of it is wanted.
func (b *BlobStore) Open(ctx context.Context, handle string, offset, length int64) (io.ReadCloser, error) {
	if !store.ValidHandle(handle) {
		return nil, fmt.Errorf("invalid blob handle %q", handle)
	}
	opts := minio.GetObjectOptions{}
	if offset > 0 || length >= 0 {
		var end int64 // zero means to the end when offset > 0
		if length >= 0 {
			end = offset + length - 1
		}
		if err := opts.SetRange(offset, end); err != nil {
			return nil, err
		}
	}
	obj, err := b.client.GetObject(ctx, b.bucket, b.key(handle), opts)
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing object before any bytes are
	// promised to the client.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	if length >= 0 {
		// SetRange(0, 0) asks for the whole object.
		return limitedObject{Reader: io.LimitReader(obj, length), obj: obj}, nil
	}
	return obj, nil
}

type limitedObject struct {
	io.Reader
	obj *minio.Object
}

func (l limitedObject) Close() error { return l.obj.Close() }

// Delete removes an object. S3 treats missing keys as success.
func (b *BlobStore) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if !store.ValidHandle(handle) {
		return fmt.Errorf("invalid blob handle %q", handle)
	}
	return b.client.RemoveObject(ctx, b.bucket, b.key(handle), minio.RemoveObjectOptions{})
}

// List enumerates objects under the prefix.
func (b *BlobStore) List(ctx context.Context) ([]store.BlobInfo, error) {
	var blobs []store.BlobInfo
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: b.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		handle := strings.TrimPrefix(obj.Key, b.prefix)
		if !store.ValidHandle(handle) {
			continue
		}
		blobs = append(blobs, store.BlobInfo{Handle: handle, ModTime: obj.LastModified})
	}
	return blobs, nil
}

// Ping checks that the bucket is reachable.
func (b *BlobStore) Ping(ctx context.Context) error {
	_, err := b.client.BucketExists(ctx, b.bucket)
	return err
}
