package index

// MetadataIndex defines the interface for vault metadata operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type MetadataIndex interface {
	UpsertFile(f FileRow) error
	DeleteFile(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Frontmatter(path string) (map[string]any, error)
	ResolveLink(link, sourcePath string) (string, bool, error)
	ListImages(q ImageQuery) ([]string, error)
	Close() error
}

// Verify *DB satisfies MetadataIndex at compile time.
var _ MetadataIndex = (*DB)(nil)
