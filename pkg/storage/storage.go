// Package storage reads and writes pose and scene library files on local
// disk or in an S3-compatible bucket.
//
// A location is either a filesystem path or an s3://bucket/key URL:
//
//	store, path, err := storage.Open("s3://robots/g1/poses.yaml", cfg)
//	data, err := storage.ReadFile(ctx, store, path)
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidLocation is returned by Open for malformed locations.
var ErrInvalidLocation = errors.New("storage: invalid location")

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file. A missing file yields an error wrapping
	// os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. Nothing is visible to
	// readers until the writer is closed without error.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Open resolves location to a store and the path of the file inside it.
// s3:// URLs use an S3 client built from cfg; anything else is a local path.
func Open(location string, cfg S3Config) (FileStore, string, error) {
	if location == "" {
		return nil, "", fmt.Errorf("%w: empty", ErrInvalidLocation)
	}
	if !strings.HasPrefix(location, "s3://") {
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, "", err
		}
		return NewLocal(filepath.Dir(abs)), filepath.Base(abs), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	key := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if u.Host == "" || key == "" {
		return nil, "", fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidLocation, location)
	}
	return NewS3(NewS3Client(cfg), u.Host, ""), key, nil
}

// ReadFile reads the whole file at path.
func ReadFile(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	rc, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// WriteFile replaces the file at path with data.
func WriteFile(ctx context.Context, fs FileStore, path string, data []byte) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		if a, ok := w.(aborter); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return err
	}
	return w.Close()
}

// aborter is implemented by writers that can discard a pending file.
type aborter interface {
	Abort() error
}
