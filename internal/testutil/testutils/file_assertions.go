package helpers

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// FileAssertions checks the state of a generated or published site tree.
type FileAssertions struct {
	t       *testing.T
	baseDir string
}

// NewFileAssertions creates a new file assertions helper rooted at baseDir.
func NewFileAssertions(t *testing.T, baseDir string) *FileAssertions {
	return &FileAssertions{
		t:       t,
		baseDir: baseDir,
	}
}

// AssertFileExists validates that a file exists.
func (fa *FileAssertions) AssertFileExists(relativePath string) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		fa.t.Errorf("Expected file to exist: %s", fullPath)
	}
	return fa
}

// AssertFileNotExists validates that a file is absent.
func (fa *FileAssertions) AssertFileNotExists(relativePath string) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	if _, err := os.Stat(fullPath); err == nil {
		fa.t.Errorf("Expected file to be absent: %s", fullPath)
	}
	return fa
}

// AssertFileEquals validates the exact content of a file.
func (fa *FileAssertions) AssertFileEquals(relativePath, expected string) *FileAssertions {
	fa.t.Helper()
	content, ok := fa.read(relativePath)
	if ok && content != expected {
		fa.t.Errorf("File %s mismatch\nexpected: %q\nactual:   %q", relativePath, expected, content)
	}
	return fa
}

// AssertFileContains validates that a file contains each fragment.
func (fa *FileAssertions) AssertFileContains(relativePath string, fragments ...string) *FileAssertions {
	fa.t.Helper()
	content, ok := fa.read(relativePath)
	if !ok {
		return fa
	}
	for _, f := range fragments {
		if !strings.Contains(content, f) {
			fa.t.Errorf("Expected file %s to contain %q\nActual content:\n%s", relativePath, f, content)
		}
	}
	return fa
}

// AssertTree validates that the tree holds exactly the given files,
// as slash-separated paths in any order.
func (fa *FileAssertions) AssertTree(expected ...string) *FileAssertions {
	fa.t.Helper()
	var found []string
	err := filepath.WalkDir(fa.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(fa.baseDir, path)
		if err != nil {
			return err
		}
		found = append(found, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		fa.t.Errorf("Failed to walk %s: %v", fa.baseDir, err)
		return fa
	}
	want := slices.Clone(expected)
	slices.Sort(want)
	slices.Sort(found)
	if !slices.Equal(want, found) {
		fa.t.Errorf("Tree %s mismatch\nexpected: %v\nactual:   %v", fa.baseDir, want, found)
	}
	return fa
}

func (fa *FileAssertions) read(relativePath string) (string, bool) {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	// #nosec G304 - test helper, paths are controlled by test code
	content, err := os.ReadFile(fullPath)
	if err != nil {
		fa.t.Errorf("Failed to read file %s: %v", fullPath, err)
		return "", false
	}
	return string(content), true
}
