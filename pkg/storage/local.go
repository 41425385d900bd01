package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements FileStore on the local filesystem. Paths are resolved
// relative to the root directory.
type Local struct {
	root string
}

// NewLocal returns a Local store rooted at dir. The directory is created on
// the first write.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

func (l *Local) resolve(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

// Read opens the named file for reading.
func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(l.resolve(path))
}

// Write creates a temporary file next to path that replaces it on Close, so
// an interrupted export never leaves a truncated library behind.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := l.resolve(path)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: f, target: full}, nil
}

// Delete removes the named file.
func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether the named file exists.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

type atomicFile struct {
	*os.File
	target string
	closed bool
}

func (f *atomicFile) Close() error {
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	tmp := f.Name()
	err := f.Sync()
	if cerr := f.File.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err == nil {
		err = os.Rename(tmp, f.target)
	}
	if err != nil {
		_ = os.Remove(tmp)
	}
	return err
}

// Abort discards the temporary file and leaves the target untouched.
func (f *atomicFile) Abort() error {
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	_ = f.File.Close()
	return os.Remove(f.Name())
}

var _ FileStore = (*Local)(nil)
