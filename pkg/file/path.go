package file

import (
	"path/filepath"
	"strings"
)

// ReplaceExt swaps the extension of path, e.g. ("a/script.rpy", "bak") -> "a/script.bak".
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	if lastDot := strings.LastIndex(filename, "."); lastDot > 0 {
		filename = filename[:lastDot]
	}
	return filepath.Join(dir, filename+ext)
}

// HasExt reports whether path ends with one of exts (case-insensitive).
// An empty exts list matches everything.
func HasExt(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range exts {
		want = strings.ToLower(want)
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}
