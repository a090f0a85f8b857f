package local

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// Ensure FS implements the interface.
var _ driven.FileSystem = (*FS)(nil)

// FS is the host filesystem.
type FS struct {
	// dirPerm and filePerm apply to created directories and files.
	dirPerm  fs.FileMode
	filePerm fs.FileMode
}

// New returns a host filesystem adapter.
func New() *FS {
	return &FS{dirPerm: 0o755, filePerm: 0o644}
}

// Open opens a file for reading.
func (f *FS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Stat describes a file.
func (f *FS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Create creates a new file, failing if it already exists.
func (f *FS) Create(path string) (driven.WritableFile, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, f.filePerm)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// RenameNoReplace moves oldPath to newPath without replacing newPath.
func (f *FS) RenameNoReplace(oldPath, newPath string) error {
	err := os.Link(oldPath, newPath)
	if err == nil {
		return os.Remove(oldPath)
	}
	if errors.Is(err, fs.ErrExist) {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// No hard links here; the check and rename are not atomic.
	if _, statErr := os.Lstat(newPath); statErr == nil {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return statErr
	}
	return os.Rename(oldPath, newPath)
}

// Remove deletes a file. Removing a missing file is not an error.
func (f *FS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// MkdirAll creates a directory and its parents.
func (f *FS) MkdirAll(path string) error {
	return os.MkdirAll(path, f.dirPerm)
}

// SyncDir flushes directory metadata so a rename is durable.
func (f *FS) SyncDir(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
