package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// Client performs clone operations with one set of credentials.
type Client struct {
	auth  transport.AuthMethod
	depth int
}

// NewClient returns a client using authMethod (nil for anonymous access).
func NewClient(authMethod transport.AuthMethod) *Client {
	return &Client{auth: authMethod}
}

// WithDepth limits clone history; zero clones everything.
func (c *Client) WithDepth(depth int) *Client {
	c.depth = depth
	return c
}

// Checkout clones branch of url into dir. When revision is set the local
// branch is hard reset to it, so the run works on exactly the pushed head.
func (c *Client) Checkout(ctx context.Context, url, branch, revision, dir string) (*WorkingCopy, error) {
	slog.Debug("Cloning repository", logfields.URL(url), logfields.Branch(branch), logfields.Path(dir))
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to remove existing directory: %w", err)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		Auth:          c.auth,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         c.depth,
		Tags:          git.NoTags,
	})
	if err != nil {
		return nil, classifyRemoteError("clone", url, err)
	}
	wc := &WorkingCopy{path: dir, url: url, branch: branch, repo: repo, auth: c.auth}

	if revision != "" {
		if err := wc.resetTo(revision); err != nil {
			return nil, err
		}
	}

	if head, herr := wc.Head(); herr == nil {
		slog.Info("Repository checked out",
			logfields.URL(url),
			logfields.Branch(branch),
			logfields.Commit(head.String()),
			logfields.Path(dir))
	}
	return wc, nil
}

// OpenOrInitBranch clones branch of url into dir. If the remote is empty or
// has no such branch, an empty repository is initialised instead with HEAD
// on the unborn branch and origin pointing at url; created reports that case.
func (c *Client) OpenOrInitBranch(ctx context.Context, url, branch, dir string) (wc *WorkingCopy, created bool, err error) {
	wc, err = c.Checkout(ctx, url, branch, "", dir)
	if err == nil {
		return wc, false, nil
	}
	if !isMissingBranch(err) {
		return nil, false, err
	}

	slog.Info("Branch not found on remote, starting it", logfields.URL(url), logfields.Branch(branch))
	if err := os.RemoveAll(dir); err != nil {
		return nil, false, fmt.Errorf("failed to remove existing directory: %w", err)
	}
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, false, fmt.Errorf("init repository: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, false, fmt.Errorf("set HEAD to %s: %w", branch, err)
	}
	if _, err := repo.CreateRemote(&ggitcfg.RemoteConfig{Name: git.DefaultRemoteName, URLs: []string{url}}); err != nil {
		return nil, false, fmt.Errorf("create remote: %w", err)
	}
	return &WorkingCopy{path: dir, url: url, branch: branch, repo: repo, auth: c.auth}, true, nil
}

func isMissingBranch(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return errors.Is(nf.Err, plumbing.ErrReferenceNotFound) ||
			errors.Is(nf.Err, transport.ErrEmptyRemoteRepository) ||
			isNoMatchingRef(nf.Err)
	}
	return false
}
