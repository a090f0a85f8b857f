package driven

import (
	"io"
	"io/fs"
)

// FileSystem is the primitive file API the executor needs.
// Rename within one volume is assumed atomic.
type FileSystem interface {
	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Stat describes a file.
	Stat(path string) (fs.FileInfo, error)

	// Create creates a new file, failing if it already exists.
	Create(path string) (WritableFile, error)

	// RenameNoReplace moves oldPath to newPath, failing with fs.ErrExist
	// if newPath already exists.
	RenameNoReplace(oldPath, newPath string) error

	// Remove deletes a file. Removing a missing file is not an error.
	Remove(path string) error

	// MkdirAll creates a directory and its parents.
	MkdirAll(path string) error

	// SyncDir flushes directory metadata so a rename is durable.
	SyncDir(path string) error
}

// WritableFile is a newly created file.
type WritableFile interface {
	io.Writer
	io.Closer

	// Sync flushes the file's contents to stable storage.
	Sync() error

	// Name returns the path the file was created at.
	Name() string
}
