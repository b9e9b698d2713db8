package workspace

import (
	"log/slog"
	"path"
	"strings"

	"github.com/starford/bannerd/internal/index"
	"github.com/starford/bannerd/internal/models"
	"github.com/starford/bannerd/internal/storage"
)

// Vault exposes the file store and the metadata cache to banner resolution.
type Vault struct {
	store  storage.Provider
	index  index.MetadataIndex
	logger *slog.Logger
}

// NewVault creates a Vault.
func NewVault(store storage.Provider, idx index.MetadataIndex, logger *slog.Logger) *Vault {
	return &Vault{store: store, index: idx, logger: logger}
}

func clean(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	return strings.TrimPrefix(p, "/")
}

// ImageExists reports whether p is an image file in the vault.
func (v *Vault) ImageExists(p string) bool {
	p = clean(p)
	return p != "" && models.IsImagePath(p) && v.store.Exists(p)
}

// ReadBinary reads a vault file.
func (v *Vault) ReadBinary(p string) ([]byte, error) {
	return v.store.Read(clean(p))
}

// ResolveLink resolves a link target relative to sourcePath.
func (v *Vault) ResolveLink(link, sourcePath string) (string, bool) {
	p, ok, err := v.index.ResolveLink(link, sourcePath)
	if err != nil {
		v.logger.Warn("workspace: resolve link failed",
			slog.String("link", link),
			slog.String("error", err.Error()))
		return "", false
	}
	return p, ok
}

// ListImages returns the images directly inside folder.
func (v *Vault) ListImages(folder string) ([]string, error) {
	return v.index.ListImages(index.ImageQuery{Dir: clean(folder), Direct: true})
}

// Frontmatter returns the cached frontmatter of a note.
func (v *Vault) Frontmatter(p string) (map[string]any, error) {
	return v.index.Frontmatter(clean(p))
}
