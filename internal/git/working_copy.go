package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// Signature is the fixed identity used for commits.
type Signature struct {
	Name  string
	Email string
}

func (s Signature) object(when time.Time) *object.Signature {
	return &object.Signature{Name: s.Name, Email: s.Email, When: when}
}

// WorkingCopy is a checked out branch inside a run workspace.
type WorkingCopy struct {
	path   string
	url    string
	branch string
	repo   *git.Repository
	auth   transport.AuthMethod
}

// Open wraps an existing checkout at dir.
func Open(dir, branch string, authMethod transport.AuthMethod) (*WorkingCopy, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	url := ""
	if remote, rerr := repo.Remote(git.DefaultRemoteName); rerr == nil && len(remote.Config().URLs) > 0 {
		url = remote.Config().URLs[0]
	}
	return &WorkingCopy{path: dir, url: url, branch: branch, repo: repo, auth: authMethod}, nil
}

// Path returns the worktree root.
func (wc *WorkingCopy) Path() string { return wc.path }

// Branch returns the checked out branch name.
func (wc *WorkingCopy) Branch() string { return wc.branch }

// Head returns the commit HEAD points at, or plumbing.ZeroHash on an unborn branch.
func (wc *WorkingCopy) Head() (plumbing.Hash, error) {
	ref, err := wc.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash(), nil
}

func (wc *WorkingCopy) resetTo(revision string) error {
	hash, err := wc.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return &NotFoundError{Op: "checkout", URL: wc.url, Err: fmt.Errorf("revision %s: %w", revision, err)}
	}
	wt, err := wc.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: *hash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset to %s: %w", revision, err)
	}
	slog.Debug("Working copy reset to revision", logfields.Revision(revision), logfields.Branch(wc.branch))
	return nil
}

// FileChanged reports whether the worktree content of rel differs from the
// blob recorded for it in HEAD. A file absent from HEAD counts as changed;
// a file missing from the worktree is an error.
func (wc *WorkingCopy) FileChanged(rel string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(wc.path, filepath.FromSlash(rel)))
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rel, err)
	}
	current := plumbing.ComputeHash(plumbing.BlobObject, data)

	recorded, err := wc.headBlob(rel)
	if err != nil {
		return false, err
	}
	if recorded.IsZero() {
		return true, nil
	}
	return recorded != current, nil
}

// headBlob returns the blob hash of rel at HEAD, ZeroHash when absent.
func (wc *WorkingCopy) headBlob(rel string) (plumbing.Hash, error) {
	head, err := wc.Head()
	if err != nil || head.IsZero() {
		return plumbing.ZeroHash, err
	}
	commit, err := wc.repo.CommitObject(head)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("get commit object: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("get tree: %w", err)
	}
	entry, err := tree.FindEntry(filepath.ToSlash(rel))
	if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("find %s in HEAD: %w", rel, err)
	}
	return entry.Hash, nil
}

// CommitFile stages rel alone and commits it. Other worktree changes are
// left unstaged and do not enter the commit.
func (wc *WorkingCopy) CommitFile(rel, message string, sig Signature) (plumbing.Hash, error) {
	wt, err := wc.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("worktree: %w", err)
	}
	if _, err := wt.Add(filepath.ToSlash(rel)); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("stage %s: %w", rel, err)
	}
	now := time.Now()
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:    sig.object(now),
		Committer: sig.object(now),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit %s: %w", rel, err)
	}
	slog.Info("Committed file", logfields.File(rel), logfields.Commit(hash.String()), logfields.Branch(wc.branch))
	return hash, nil
}

// CommitAll stages every worktree change, including removals, and commits
// when the result differs from HEAD. committed is false for a clean tree.
func (wc *WorkingCopy) CommitAll(message string, sig Signature) (hash plumbing.Hash, committed bool, err error) {
	wt, err := wc.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("stage changes: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		head, herr := wc.Head()
		return head, false, herr
	}
	now := time.Now()
	hash, err = wt.Commit(message, &git.CommitOptions{
		Author:    sig.object(now),
		Committer: sig.object(now),
	})
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("commit: %w", err)
	}
	return hash, true, nil
}

// Push sends the branch to origin without force. A remote tip that local
// history does not contain, or a rejected non-fast-forward update, is
// returned as *RemoteDivergedError; an up-to-date remote is success.
func (wc *WorkingCopy) Push(ctx context.Context) error {
	ref := plumbing.NewBranchReferenceName(wc.branch)
	if err := wc.checkFastForward(ctx, ref); err != nil {
		return err
	}
	err := wc.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []ggitcfg.RefSpec{ggitcfg.RefSpec(ref.String() + ":" + ref.String())},
		Auth:       wc.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		slog.Debug("Remote already up to date", logfields.Branch(wc.branch))
		return nil
	}
	if err != nil {
		return classifyPushError(wc.url, wc.branch, err)
	}
	slog.Info("Pushed branch", logfields.URL(wc.url), logfields.Branch(wc.branch))
	return nil
}

// checkFastForward compares the remote tip with local history before pushing.
// A shallow clone cannot walk past its boundary, so go-git's own check would
// report a diverged remote as a missing object.
func (wc *WorkingCopy) checkFastForward(ctx context.Context, ref plumbing.ReferenceName) error {
	remote, err := wc.repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return fmt.Errorf("remote %s: %w", git.DefaultRemoteName, err)
	}
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: wc.auth})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil
	}
	if err != nil {
		return classifyRemoteError("push", wc.url, err)
	}
	var tip plumbing.Hash
	for _, r := range refs {
		if r.Name() == ref {
			tip = r.Hash()
			break
		}
	}
	if tip.IsZero() {
		return nil
	}

	head, err := wc.Head()
	if err != nil {
		return err
	}
	if head == tip {
		return nil
	}
	diverged := &RemoteDivergedError{Op: "push", URL: wc.url, Branch: wc.branch,
		Err: fmt.Errorf("remote tip %s is not in local history", tip)}

	remoteCommit, err := wc.repo.CommitObject(tip)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return diverged
	}
	if err != nil {
		return fmt.Errorf("get remote tip %s: %w", tip, err)
	}
	localCommit, err := wc.repo.CommitObject(head)
	if err != nil {
		return fmt.Errorf("get commit object: %w", err)
	}
	ok, err := remoteCommit.IsAncestor(localCommit)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return diverged
	}
	if err != nil {
		return fmt.Errorf("check ancestry of %s: %w", tip, err)
	}
	if !ok {
		return diverged
	}
	return nil
}
