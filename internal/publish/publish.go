package publish

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/git"
)

// Request describes one publication.
type Request struct {
	// SourceDir is the directory tree to publish.
	SourceDir string
	// ScratchDir is a run-private directory the publisher may use.
	ScratchDir string
	// SourceCommit is the commit the tree was produced from, for messages.
	SourceCommit string
}

// Publication reports what a publisher did.
type Publication struct {
	Kind     config.PublishKind
	Location string
	// Changed is false when the published tree already matched the source.
	Changed bool
	Commit  string
	Files   int
	At      time.Time
}

// Publisher publishes a directory tree.
type Publisher interface {
	Publish(ctx context.Context, req Request) (*Publication, error)
}

// New builds the publisher selected by cfg. A nil Publisher is returned for
// kind "none". authMethod is used by the git-branch publisher when no
// publish token is configured.
func New(cfg config.PublishConfig, commit config.CommitConfig, authMethod transport.AuthMethod) (Publisher, error) {
	sig := git.Signature{Name: commit.AuthorName, Email: commit.AuthorEmail}
	switch cfg.Kind {
	case config.PublishNone:
		return nil, nil
	case config.PublishDirectory:
		return NewDirectoryPublisher(cfg.Target, cfg.Exclude), nil
	case config.PublishGitBranch:
		p := NewGitBranchPublisher(cfg.Remote, cfg.Branch, sig, authMethod).WithExcludes(cfg.Exclude)
		if cfg.GitHubPages != nil {
			pages, err := NewPagesBuildRequester(*cfg.GitHubPages, cfg.Token)
			if err != nil {
				return nil, err
			}
			p.WithPagesBuild(pages)
		}
		return p, nil
	default:
		return nil, errors.ConfigError("unknown publisher kind").
			WithContext("kind", string(cfg.Kind)).
			Build()
	}
}

func publishError(err error, message, location string) error {
	return errors.WrapError(err, errors.CategoryPublish, message).
		WithContext("location", location).
		Build()
}
