package publish

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

const (
	// DefaultPagesInterval is the minimum gap between Pages build requests.
	DefaultPagesInterval = time.Minute

	pagesRequestTimeout = 30 * time.Second
)

// PagesBuildRequester asks GitHub to rebuild a Pages site. Requests closer
// together than the configured interval are skipped.
type PagesBuildRequester struct {
	gh      *gh.Client
	owner   string
	repo    string
	limiter *rate.Limiter
}

// NewPagesBuildRequester returns a requester authenticated with token.
func NewPagesBuildRequester(cfg config.GitHubPagesConfig, token string) (*PagesBuildRequester, error) {
	interval, err := config.ParseDuration(cfg.MinInterval, DefaultPagesInterval)
	if err != nil {
		return nil, errors.ConfigError("invalid github_pages.min_interval").WithCause(err).Build()
	}

	httpClient := &http.Client{Timeout: pagesRequestTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = pagesRequestTimeout
	}
	client := gh.NewClient(httpClient)
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, errors.ConfigError("invalid github_pages.api_url").WithCause(err).Build()
		}
		client.BaseURL = base
	}

	return &PagesBuildRequester{
		gh:      client,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}, nil
}

// Request triggers a Pages build. requested is false when the request was
// throttled, which is not an error.
func (r *PagesBuildRequester) Request(ctx context.Context) (requested bool, err error) {
	if !r.limiter.Allow() {
		slog.Info("Pages build request throttled", slog.String("repo", r.owner+"/"+r.repo))
		return false, nil
	}
	build, _, err := r.gh.Repositories.RequestPageBuild(ctx, r.owner, r.repo)
	if err != nil {
		return false, errors.WrapError(err, errors.CategoryPublish, "pages build request rejected").
			WithContext("repo", r.owner+"/"+r.repo).
			Build()
	}
	slog.Info("Pages build requested",
		slog.String("repo", r.owner+"/"+r.repo),
		slog.String("status", build.GetStatus()))
	return true, nil
}
