// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/bannerd/internal/models"

// Provider is the interface for vault file operations. All paths are
// slash-separated and relative to the vault root.
type Provider interface {
	// Root returns the absolute vault directory.
	Root() string
	// List returns metadata for every note and image under dir, recursively.
	List(dir string) ([]models.FileMeta, error)
	// ListDir returns metadata for the direct children of dir (files only).
	ListDir(dir string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns metadata for a single note or image file.
	Stat(path string) (models.FileMeta, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
	// Write atomically writes content to path.
	Write(path string, content []byte) error
}
