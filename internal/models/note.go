// Package models defines the vault domain types shared by storage, index and the banner core.
package models

import (
	"path"
	"strings"
	"time"
)

// FileMeta is a lightweight description of a vault file returned by list operations.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Name returns the file name without its directory.
func (m FileMeta) Name() string { return path.Base(m.Path) }

// IsNote reports whether the file is a Markdown note.
func (m FileMeta) IsNote() bool { return IsNotePath(m.Path) }

// IsImage reports whether the file has an image extension.
func (m FileMeta) IsImage() bool { return IsImagePath(m.Path) }

// ImageExtensions lists the extensions treated as banner-capable images.
var ImageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".avif": "image/avif",
	".svg":  "image/svg+xml",
}

// IsImagePath reports whether p has an image extension.
func IsImagePath(p string) bool {
	_, ok := ImageExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// IsNotePath reports whether p is a Markdown note.
func IsNotePath(p string) bool {
	return strings.EqualFold(path.Ext(p), ".md")
}

// MIMEType returns the MIME type for an image path, falling back to a generic image type.
func MIMEType(p string) string {
	if mt, ok := ImageExtensions[strings.ToLower(path.Ext(p))]; ok {
		return mt
	}
	return "image/" + strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}
