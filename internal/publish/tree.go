package publish

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// excluder decides which source entries stay out of a publication. The
// .git directory is always excluded; patterns match either the slash path
// relative to the source root or the entry's base name.
type excluder struct {
	patterns []string
}

func newExcluder(patterns []string) excluder {
	return excluder{patterns: patterns}
}

func (e excluder) excluded(rel string) bool {
	base := path.Base(rel)
	if base == ".git" {
		return true
	}
	for _, p := range e.patterns {
		p = strings.TrimSuffix(p, "/")
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// copyTree copies src into dst, creating dst as needed, and returns the
// number of files copied.
func copyTree(src, dst string, ex excluder) (int, error) {
	files := 0
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0o750)
		}
		relSlash := filepath.ToSlash(rel)
		if ex.excluded(relSlash) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o750)
		case d.Type().IsRegular():
			files++
			return copyFile(p, target)
		default:
			// Symlinks and special files are not published.
			return nil
		}
	})
	return files, err
}

// clearTree removes everything in dir except the .git directory.
func clearTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	// #nosec G304 -- paths come from walking the working copy
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}
	// #nosec G304 -- destination is inside a run scratch directory or the configured target
	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	return dstFile.Close()
}
