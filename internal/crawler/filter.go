package crawler

import "regexp"

var (
	junkFilePattern = regexp.MustCompile(`(?i)^(?:\..*|thumbs\.db|desktop\.ini)$`)
	junkDirPattern  = regexp.MustCompile(`(?i)^(?:\..*|\$recycle\.bin|system volume information)$`)
)

// Filter decides whether a directory entry is junk. The zero value and a nil
// *Filter exclude nothing.
type Filter struct {
	files *regexp.Regexp
	dirs  *regexp.Regexp
}

// NewFilter returns a filter that skips hidden entries, thumbnail caches,
// desktop.ini files, recycle bins and "System Volume Information" when
// enabled, and nothing otherwise.
func NewFilter(enabled bool) *Filter {
	if !enabled {
		return &Filter{}
	}
	return &Filter{files: junkFilePattern, dirs: junkDirPattern}
}

// Excluded matches the entry's base name, never its full path.
func (f *Filter) Excluded(name string, isDir bool) bool {
	if f == nil {
		return false
	}
	pattern := f.files
	if isDir {
		pattern = f.dirs
	}
	if pattern == nil {
		return false
	}
	return pattern.MatchString(name)
}
