// Package filesystem provides a BlobStorage implementation backed by the local
// filesystem. Blobs are immutable files named by their handle.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/haukened/onetimeview/internal/store"
)

// Ensure BlobStore implements store.BlobStorage
var _ store.BlobStorage = (*BlobStore)(nil)

// BlobStore implements store.BlobStorage using the local filesystem.
type BlobStore struct {
	root string
}

// New returns a filesystem-backed blob store rooted at dir. The directory
// must already exist with secure permissions (0700 recommended).
func New(root string) (*BlobStore, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.New("blob root is not a directory")
	}
	return &BlobStore{root: root}, nil
}

// path constructs the full path to the blob file for a handle.
func (b *BlobStore) path(handle string) string { return filepath.Join(b.root, handle) }

// Put stores exactly size bytes from r under a fresh handle.
func (b *BlobStore) Put(_ context.Context, r io.Reader, size int64, fileName string) (string, error) {
	handle := store.NewBlobHandle(fileName)
	p := b.path(handle)
	// #nosec G304: path is a fixed root plus a generated handle; no traversal possible.
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err = io.CopyN(f, r, size); err != nil {
		// delete partial file on error
		_ = os.Remove(p)
		return "", err
	}
	if err = f.Sync(); err != nil {
		_ = os.Remove(p)
		return "", err
	}
	return handle, nil
}

// Open returns a reader over length bytes starting at offset.
func (b *BlobStore) Open(_ context.Context, handle string, offset, length int64) (io.ReadCloser, error) {
	if !store.ValidHandle(handle) {
		return nil, fmt.Errorf("invalid blob handle %q", handle)
	}
	f, err := os.Open(b.path(handle)) // #nosec G304 path constructed internally
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err = f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if length < 0 {
		return f, nil
	}
	return &limitedFile{Reader: io.LimitReader(f, length), f: f}, nil
}

// limitedFile bounds reads while closing the underlying file.
type limitedFile struct {
	io.Reader
	f *os.File
}

func (l *limitedFile) Close() error { return l.f.Close() }

// Delete removes the blob file for a handle. Missing files are ignored.
func (b *BlobStore) Delete(_ context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if !store.ValidHandle(handle) {
		return fmt.Errorf("invalid blob handle %q", handle)
	}
	if err := os.Remove(b.path(handle)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns every blob file with its modification time. Files that are
// not blob handles are ignored.
func (b *BlobStore) List(_ context.Context) ([]store.BlobInfo, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var blobs []store.BlobInfo
	for _, e := range entries {
		if e.IsDir() || !store.ValidHandle(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, store.BlobInfo{Handle: e.Name(), ModTime: info.ModTime()})
	}
	return blobs, nil
}
