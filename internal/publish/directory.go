package publish

import (
	"context"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// PreviousSuffix names the directory holding the outgoing tree while a new
// one is swapped in. Readers fall back to it when the target is briefly absent.
const PreviousSuffix = ".previous"

// DirectoryPublisher mirrors the source tree into a local directory. The new
// tree is staged next to the target and swapped in with renames so readers
// never see a half-copied site.
type DirectoryPublisher struct {
	target   string
	excludes excluder
}

// NewDirectoryPublisher returns a publisher writing to target.
func NewDirectoryPublisher(target string, excludes []string) *DirectoryPublisher {
	return &DirectoryPublisher{target: target, excludes: newExcluder(excludes)}
}

// Publish implements Publisher.
func (p *DirectoryPublisher) Publish(ctx context.Context, req Request) (*Publication, error) {
	if err := ctx.Err(); err != nil {
		return nil, publishError(err, "publication cancelled", p.target)
	}
	staging := p.target + ".staging"
	previous := p.target + PreviousSuffix
	_ = os.RemoveAll(staging)
	_ = os.RemoveAll(previous)

	files, err := copyTree(req.SourceDir, staging, p.excludes)
	if err != nil {
		_ = os.RemoveAll(staging)
		return nil, publishError(err, "cannot stage site tree", p.target)
	}

	if _, err := os.Stat(p.target); err == nil {
		if err := os.Rename(p.target, previous); err != nil {
			return nil, publishError(err, "cannot move previous site aside", p.target)
		}
	}
	if err := os.Rename(staging, p.target); err != nil {
		_ = os.Rename(previous, p.target)
		return nil, publishError(err, "cannot swap in new site", p.target)
	}
	_ = os.RemoveAll(previous)

	slog.Info("Published site",
		logfields.Publisher(string(config.PublishDirectory)),
		logfields.Path(p.target),
		slog.Int("files", files))
	return &Publication{
		Kind:     config.PublishDirectory,
		Location: p.target,
		Changed:  true,
		Files:    files,
		At:       time.Now(),
	}, nil
}
