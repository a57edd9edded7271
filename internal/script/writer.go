package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Encode renders lines in the canonical encoding: UTF-8, "\n" line endings,
// BOM and trailing newline preserved from the source.
func Encode(lines []string, bom, trailingNewline bool) []byte {
	var sb strings.Builder
	if bom {
		sb.Write(utf8BOM)
	}
	sb.WriteString(strings.Join(lines, "\n"))
	if trailingNewline && len(lines) > 0 {
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// WriteAtomic replaces the file at path with data in one rename. The original file
// mode is kept when the file exists.
func WriteAtomic(path string, data []byte) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false
	return nil
}
