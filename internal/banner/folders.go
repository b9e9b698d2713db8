package banner

import (
	"path"
	"strings"
)

// Folders selects the folder override that applies to a note.
type Folders struct {
	overrides []FolderOverride
}

// NewFolders returns a matcher over already-validated overrides.
func NewFolders(overrides []FolderOverride) *Folders {
	return &Folders{overrides: overrides}
}

// For returns the override for notePath, or nil. The longest matching folder
// wins; ties go to the override defined first. A direct-children-only
// override matches only notes whose parent folder is exactly its folder.
func (f *Folders) For(notePath string) *FolderOverride {
	dir := parentDir(notePath)
	var best *FolderOverride
	for i := range f.overrides {
		o := &f.overrides[i]
		if !folderMatches(o, dir) {
			continue
		}
		if best == nil || len(o.Folder) > len(best.Folder) {
			best = o
		}
	}
	return best
}

func folderMatches(o *FolderOverride, dir string) bool {
	if o.DirectChildrenOnly {
		return dir == o.Folder
	}
	return o.Folder == "" || dir == o.Folder || strings.HasPrefix(dir, o.Folder+"/")
}

func parentDir(p string) string {
	d := path.Dir(strings.Trim(p, "/"))
	if d == "." {
		return ""
	}
	return d
}
