// Package storage implements storage.Filesystem backends: a local disk
// filesystem and a family of object-store-backed remote filesystems
// (S3, Azure Blob, GCS) selected by fs_type/remote_backend.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jittakal/logaggregator/pkg/storage"
)

var _ storage.Filesystem = (*LocalFilesystem)(nil)

// LocalFilesystem implements storage.Filesystem directly over the
// local disk, the "std" fs_type. Modeled on a writer's
// directory-creation path: MkdirAll the parent before OpenFile.
type LocalFilesystem struct {
	dirMode os.FileMode
}

// NewLocalFilesystem creates a LocalFilesystem using 0755 directories.
func NewLocalFilesystem() *LocalFilesystem {
	return &LocalFilesystem{dirMode: 0755}
}

// Create opens path for writing, creating parent directories as needed.
func (fs *LocalFilesystem) Create(path string) (io.WriteCloser, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, fs.dirMode); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

// Open opens an existing path for reading.
func (fs *LocalFilesystem) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Remove deletes path; absent paths are not an error.
func (fs *LocalFilesystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// ReadDir lists the base names of entries directly under dir.
func (fs *LocalFilesystem) ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("readdir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Symlink points link at target atomically: it creates a temporary
// symlink and renames it over the destination so a reader never
// observes a half-updated link.
func (fs *LocalFilesystem) Symlink(target, link string) error {
	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", tmp, target, err)
	}
	if err := os.Rename(tmp, link); err != nil {
		return fmt.Errorf("rename symlink %s: %w", link, err)
	}
	return nil
}
