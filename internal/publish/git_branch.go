package publish

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/git"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// GitBranchPublisher replaces the tree of a pages branch with the source
// tree and pushes it. History of the pages branch is kept; a commit is only
// made when the tree changed.
type GitBranchPublisher struct {
	remote   string
	branch   string
	sig      git.Signature
	auth     transport.AuthMethod
	excludes excluder
	pages    *PagesBuildRequester
}

// NewGitBranchPublisher returns a publisher pushing to branch of remote.
func NewGitBranchPublisher(remote, branch string, sig git.Signature, authMethod transport.AuthMethod) *GitBranchPublisher {
	return &GitBranchPublisher{remote: remote, branch: branch, sig: sig, auth: authMethod}
}

// WithExcludes sets patterns kept out of the pages branch.
func (p *GitBranchPublisher) WithExcludes(patterns []string) *GitBranchPublisher {
	p.excludes = newExcluder(patterns)
	return p
}

// WithPagesBuild requests a Pages build after every push that changed the branch.
func (p *GitBranchPublisher) WithPagesBuild(r *PagesBuildRequester) *GitBranchPublisher {
	p.pages = r
	return p
}

// Publish implements Publisher.
func (p *GitBranchPublisher) Publish(ctx context.Context, req Request) (*Publication, error) {
	location := p.remote + "@" + p.branch
	dir := filepath.Join(req.ScratchDir, "pages")

	wc, created, err := git.NewClient(p.auth).OpenOrInitBranch(ctx, p.remote, p.branch, dir)
	if err != nil {
		return nil, publishError(err, "cannot open pages branch", location)
	}
	if err := clearTree(dir); err != nil {
		return nil, publishError(err, "cannot clear pages tree", location)
	}
	files, err := copyTree(req.SourceDir, dir, p.excludes)
	if err != nil {
		return nil, publishError(err, "cannot copy site tree", location)
	}
	// Serve files as-is instead of through Jekyll.
	if err := os.WriteFile(filepath.Join(dir, ".nojekyll"), nil, 0o600); err != nil {
		return nil, publishError(err, "cannot write .nojekyll", location)
	}

	message := "deploy"
	if req.SourceCommit != "" {
		message = "deploy: " + req.SourceCommit
	}
	hash, committed, err := wc.CommitAll(message, p.sig)
	if err != nil {
		return nil, publishError(err, "cannot commit pages tree", location)
	}

	pub := &Publication{
		Kind:     config.PublishGitBranch,
		Location: location,
		Changed:  committed,
		Commit:   hash.String(),
		Files:    files,
		At:       time.Now(),
	}
	if !committed {
		slog.Info("Pages branch already up to date", logfields.Branch(p.branch), logfields.Commit(hash.String()))
		return pub, nil
	}
	if err := wc.Push(ctx); err != nil {
		return nil, publishError(err, "cannot push pages branch", location)
	}
	slog.Info("Published site",
		logfields.Publisher(string(config.PublishGitBranch)),
		logfields.URL(p.remote),
		logfields.Branch(p.branch),
		logfields.Commit(hash.String()),
		slog.Int("files", files),
		slog.Bool("new_branch", created))

	if p.pages != nil {
		if _, err := p.pages.Request(ctx); err != nil {
			return nil, publishError(err, "pages build request failed", location)
		}
	}
	return pub, nil
}
