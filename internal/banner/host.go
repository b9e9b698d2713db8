package banner

// ImageChecker reports whether an image file exists in the vault.
type ImageChecker interface {
	ImageExists(path string) bool
}

// Vault is the read side of the content store used during resolution.
type Vault interface {
	ImageChecker
	// ReadBinary returns the raw bytes of a vault file.
	ReadBinary(path string) ([]byte, error)
	// ResolveLink resolves a link target relative to sourcePath.
	ResolveLink(link, sourcePath string) (string, bool)
	// ListImages returns the images directly inside folder.
	ListImages(folder string) ([]string, error)
}

// MetadataCache returns the parsed frontmatter of a note. A note without
// frontmatter yields a nil map and no error.
type MetadataCache interface {
	Frontmatter(path string) (map[string]any, error)
}

// Renderer is told to redraw after each resolution.
type Renderer interface {
	Show(viewID string, st *State)
	Hide(viewID, notePath string)
}

// Notifier shows a short user-visible message.
type Notifier interface {
	Notice(msg string)
}

type nopRenderer struct{}

func (nopRenderer) Show(string, *State)  {}
func (nopRenderer) Hide(string, string) {}

type nopNotifier struct{}

func (nopNotifier) Notice(string) {}
