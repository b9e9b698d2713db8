package index

import (
	"log/slog"

	"github.com/starford/bannerd/internal/models"
	"github.com/starford/bannerd/internal/parser"
	"github.com/starford/bannerd/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed notes are parsed and upserted, new/changed images recorded
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}
		if err := IndexFile(db, store, m); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteFile(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile records one vault file. Notes are read and their frontmatter
// parsed; images are recorded from metadata alone.
func IndexFile(db MetadataIndex, store storage.Provider, m models.FileMeta) error {
	if m.IsImage() {
		return db.UpsertFile(FileRow{
			Path:      m.Path,
			Kind:      KindImage,
			Checksum:  m.Checksum,
			UpdatedAt: m.UpdatedAt,
		})
	}

	data, err := store.Read(m.Path)
	if err != nil {
		return err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertFile(FileRow{
		Path:        m.Path,
		Kind:        KindNote,
		Checksum:    m.Checksum,
		Frontmatter: res.Frontmatter,
		UpdatedAt:   m.UpdatedAt,
	})
}
