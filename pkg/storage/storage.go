// Package storage defines the filesystem abstraction FileStoreBase uses
// to place rotated files: a local "std" filesystem or a remote,
// "hdfs-like" object-store filesystem (S3, Azure Blob, or GCS), selected
// by the fs_type/remote_backend configuration.
package storage

import "io"

// Filesystem is the transport FileStoreBase rotates files through. It is
// intentionally narrow: a file is Create'd once and written to for its
// whole lifetime until the rotation engine rotates to the next suffix
// and Closes it; object-store backends buffer that lifetime locally and
// upload the completed object on Close.
type Filesystem interface {
	// Create opens path for writing a brand new rotation file, creating
	// parent directories as needed. The returned writer is kept open by
	// the caller across multiple Write calls until rotation closes it.
	Create(path string) (io.WriteCloser, error)

	// Open opens an existing path for reading, for the Readable
	// capability (read_oldest) and for stats-file appends.
	Open(path string) (io.ReadCloser, error)

	// Remove deletes path. Not an error if path does not exist.
	Remove(path string) error

	// ReadDir lists the base names of entries directly under dir, used
	// by findOldestFile/findNewestFile to discover rotation suffixes.
	ReadDir(dir string) ([]string, error)

	// Symlink points link at target, replacing any existing link. Used
	// to maintain "${base}_current". Backends that cannot support real
	// symlinks implement this as a small pointer object and are not
	// required to make the update atomic to readers outside this
	// process.
	Symlink(target, link string) error
}
