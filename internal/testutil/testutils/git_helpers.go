package helpers

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit summarises one commit on a remote branch.
type Commit struct {
	Hash    string
	Message string
	Author  string
	Files   []string // paths changed relative to the first parent
}

// SetupTestGitRepo initializes a temporary git repository for testing.
// Returns the repository, its worktree, and the absolute path to the temporary directory.
func SetupTestGitRepo(t *testing.T) (*git.Repository, *git.Worktree, string) {
	t.Helper()

	tempDir := t.TempDir()

	repo, err := git.PlainInit(tempDir, false)
	if err != nil {
		t.Fatalf("failed to initialize git repo: %v", err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}

	return repo, w, tempDir
}

// NewBareRemote creates a bare repository whose branch holds files in a
// single seed commit, and returns its path.
func NewBareRemote(t *testing.T, branch string, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	barePath := filepath.Join(root, "remote.git")
	if _, err := git.PlainInit(barePath, true); err != nil {
		t.Fatalf("init bare: %v", err)
	}
	PushCommit(t, barePath, branch, files, "seed")
	return barePath
}

// PushCommit commits files on top of branch of the remote at url, as another
// contributor would, and pushes it. The branch is created when absent.
func PushCommit(t *testing.T, url, branch string, files map[string]string, message string) string {
	t.Helper()

	dir := t.TempDir()
	ref := plumbing.NewBranchReferenceName(branch)
	repo, err := git.PlainClone(dir, false, &git.CloneOptions{URL: url, ReferenceName: ref, SingleBranch: true})
	if err != nil {
		if err := os.RemoveAll(dir); err != nil {
			t.Fatalf("reset seed dir: %v", err)
		}
		repo, err = git.PlainInit(dir, false)
		if err != nil {
			t.Fatalf("init seed: %v", err)
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref)); err != nil {
			t.Fatalf("set HEAD: %v", err)
		}
		if _, err := repo.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{url}}); err != nil {
			t.Fatalf("create remote: %v", err)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(files[name]), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	spec := ggitcfg.RefSpec(ref.String() + ":" + ref.String())
	if err := repo.Push(&git.PushOptions{RemoteName: "origin", RefSpecs: []ggitcfg.RefSpec{spec}}); err != nil {
		t.Fatalf("push: %v", err)
	}
	return hash.String()
}

// RemoteLog lists the commits of branch on the remote at barePath, newest first.
func RemoteLog(t *testing.T, barePath, branch string) []Commit {
	t.Helper()

	repo, err := git.PlainOpen(barePath)
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatalf("resolve %s: %v", branch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	var out []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		entry := Commit{Hash: c.Hash.String(), Message: c.Message, Author: c.Author.Name}
		stats, serr := c.Stats()
		if serr != nil {
			return serr
		}
		for _, s := range stats {
			entry.Files = append(entry.Files, s.Name)
		}
		out = append(out, entry)
		return nil
	})
	if err != nil {
		t.Fatalf("walk log: %v", err)
	}
	return out
}

// RemoteFile returns the content of path at the tip of branch on the remote.
func RemoteFile(t *testing.T, barePath, branch, path string) string {
	t.Helper()

	repo, err := git.PlainOpen(barePath)
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatalf("resolve %s: %v", branch, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	file, err := commit.File(path)
	if err != nil {
		t.Fatalf("file %s: %v", path, err)
	}
	content, err := file.Contents()
	if err != nil {
		t.Fatalf("contents %s: %v", path, err)
	}
	return content
}

// HasBranch reports whether the remote has branch.
func HasBranch(t *testing.T, barePath, branch string) bool {
	t.Helper()

	repo, err := git.PlainOpen(barePath)
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	return err == nil
}
