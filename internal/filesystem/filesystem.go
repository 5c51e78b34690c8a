// Package filesystem is the small slice of the OS the download scheduler writes through.
package filesystem

import (
	"io"
	"os"
	"path/filepath"
)

// FileSystem abstracts destination file handling so transfers can be tested in isolation.
type FileSystem interface {
	FileExists(path string) (bool, error)
	PartialSize(path string) (int64, error)
	OpenForWrite(path string, resume bool) (io.WriteCloser, error)
	DeleteFile(path string) error
}

// OSFileSystem implements FileSystem using OS file operations.
type OSFileSystem struct{}

func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// FileExists reports whether a non-directory exists at path.
func (fs *OSFileSystem) FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// PartialSize returns how many bytes are already at path, 0 when nothing is there.
func (fs *OSFileSystem) PartialSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, &os.PathError{Op: "stat", Path: path, Err: os.ErrExist}
	}

	return info.Size(), nil
}

// OpenForWrite opens path for writing, creating parent directories. With resume the
// file is appended to; otherwise it is truncated.
func (fs *OSFileSystem) OpenForWrite(path string, resume bool) (io.WriteCloser, error) {
	if err := fs.EnsureDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}

	flag := os.O_CREATE | os.O_WRONLY
	if resume {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}

	return os.OpenFile(path, flag, 0o644)
}

func (fs *OSFileSystem) DeleteFile(path string) error {
	return os.Remove(path)
}

func (fs *OSFileSystem) EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}
