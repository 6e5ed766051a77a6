package crawler

import (
	"path/filepath"
	"strings"
)

// ForeignID derives the stable identifier of path under root. The root
// directory itself has none; a root file is identified by its name. Paths
// outside root have none either.
func ForeignID(root, path string, isDir bool) (string, bool) {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		if isDir {
			return "", false
		}
		return filepath.Base(path), true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
