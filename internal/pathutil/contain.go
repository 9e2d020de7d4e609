package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// ResolveSymlinkTarget normalizes target (which may be relative to
// symlinkParentDir or absolute) into an absolute path by textual resolution
// of ".." segments only — it never touches the filesystem, so containment
// checks can run before a symlink is actually created.
func ResolveSymlinkTarget(homeRoot, symlinkParentDir, target string) string {
	var abs string
	if filepath.IsAbs(target) {
		abs = target
	} else {
		abs = filepath.Join(symlinkParentDir, target)
	}
	return path.Clean(filepath.ToSlash(abs))
}

// WithinHome reports whether resolved (an absolute, textually-normalized
// path) lies within homeRoot.
func WithinHome(homeRoot, resolved string) bool {
	home := strings.TrimRight(filepath.ToSlash(homeRoot), "/")
	resolved = strings.TrimRight(resolved, "/")
	return resolved == home || strings.HasPrefix(resolved, home+"/")
}
