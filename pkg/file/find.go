package file

import (
	"io/fs"
	"path/filepath"
	"time"
)

// FindByExt walks dir and returns regular files whose extension is one of exts,
// in lexical walk order.
func FindByExt(dir string, exts []string) ([]string, error) {
	return FindRecentAfter(dir, time.Time{}, exts)
}

// FindRecentAfter walks dir and returns files modified after startTime.
// When exts is non-empty only files with one of those extensions are returned.
func FindRecentAfter(dir string, startTime time.Time, exts []string) ([]string, error) {
	var recentFiles []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !HasExt(path, exts) {
			return nil
		}

		if !startTime.IsZero() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if !info.ModTime().After(startTime) {
				return nil
			}
		}
		recentFiles = append(recentFiles, path)
		return nil
	})

	return recentFiles, err
}
