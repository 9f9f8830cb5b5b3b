package config

import (
	"path"
	"strings"
	"time"
	_ "time/tzdata" // fallback zoneinfo for minimal hosts

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	for _, check := range []func() error{
		v.validateRepository,
		v.validateToolchain,
		v.validateDependencies,
		v.validateGenerator,
		v.validatePublish,
		v.validateTriggers,
		v.validateDurations,
		v.validateMarket,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func invalid(message, field string) error {
	return errors.ConfigError(message).WithContext("field", field).Build()
}

func (cv *configurationValidator) validateRepository() error {
	repo := cv.config.Repository
	if strings.TrimSpace(repo.URL) == "" {
		return invalid("repository url is required", "repository.url")
	}
	if repo.Depth < 0 {
		return invalid("repository depth cannot be negative", "repository.depth")
	}
	if repo.Auth == nil {
		return nil
	}
	switch repo.Auth.Type {
	case AuthTypeToken:
		if repo.Auth.Token == "" {
			return invalid("token authentication requires a token", "repository.auth.token")
		}
	case AuthTypeBasic:
		if repo.Auth.Username == "" || repo.Auth.Password == "" {
			return invalid("basic authentication requires username and password", "repository.auth")
		}
	}
	return nil
}

func (cv *configurationValidator) validateToolchain() error {
	tc := cv.config.Toolchain
	if tc == nil {
		return nil
	}
	if tc.Command == "" {
		return invalid("toolchain command is required", "toolchain.command")
	}
	if tc.Version == "" {
		return invalid("toolchain version must be pinned", "toolchain.version")
	}
	return nil
}

func (cv *configurationValidator) validateDependencies() error {
	deps := cv.config.Dependencies
	if deps == nil {
		return nil
	}
	if deps.Manifest == "" {
		return invalid("dependencies manifest is required", "dependencies.manifest")
	}
	return nil
}

func (cv *configurationValidator) validateGenerator() error {
	gen := cv.config.Generator
	if len(gen.Command) == 0 || strings.TrimSpace(gen.Command[0]) == "" {
		return invalid("generator command is required", "generator.command")
	}
	if !isLocalPath(gen.Target) {
		return invalid("generator target must be a relative path inside the repository", "generator.target")
	}
	return nil
}

func (cv *configurationValidator) validatePublish() error {
	pub := cv.config.Publish
	if !isLocalPath(pub.Directory) {
		return invalid("publish directory must be inside the repository", "publish.directory")
	}
	switch pub.Kind {
	case PublishGitBranch:
		if pub.Remote == "" {
			return invalid("git-branch publisher requires a remote", "publish.remote")
		}
		if pub.Branch == cv.config.Repository.Branch && pub.Remote == cv.config.Repository.URL {
			return invalid("publish branch must differ from the source branch", "publish.branch")
		}
	case PublishDirectory:
		if pub.Target == "" {
			return invalid("directory publisher requires a target", "publish.target")
		}
	}
	if gp := pub.GitHubPages; gp != nil {
		if pub.Kind != PublishGitBranch {
			return invalid("github_pages requires the git-branch publisher", "publish.github_pages")
		}
		if gp.Owner == "" || gp.Repo == "" {
			return invalid("github_pages requires owner and repo", "publish.github_pages")
		}
	}
	return nil
}

func (cv *configurationValidator) validateTriggers() error {
	for i, s := range cv.config.Triggers.Schedules {
		if len(strings.Fields(s)) != 5 {
			return errors.ConfigError("schedule must be a five-field cron expression").
				WithContext("field", "triggers.schedules").
				WithContext("index", i).
				WithContext("value", s).
				Build()
		}
	}
	if p := cv.config.Triggers.Push; p != nil && !strings.HasPrefix(p.Path, "/") {
		return invalid("push trigger path must start with /", "triggers.push.path")
	}
	return nil
}

func (cv *configurationValidator) validateDurations() error {
	fields := map[string]string{
		"generator.timeout":       cv.config.Generator.Timeout,
		"daemon.shutdown_timeout": cv.config.Daemon.ShutdownTimeout,
		"market.timeout":          cv.config.Market.Timeout,
	}
	if cv.config.Dependencies != nil {
		fields["dependencies.timeout"] = cv.config.Dependencies.Timeout
	}
	if gp := cv.config.Publish.GitHubPages; gp != nil {
		fields["publish.github_pages.min_interval"] = gp.MinInterval
	}
	for field, raw := range fields {
		if _, err := ParseDuration(raw, 0); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid duration").
				Fatal().
				WithContext("field", field).
				Build()
		}
	}
	return nil
}

func (cv *configurationValidator) validateMarket() error {
	if _, err := LoadLocation(cv.config.Market.Timezone); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "unknown market timezone").
			Fatal().
			WithContext("field", "market.timezone").
			Build()
	}
	return nil
}

// LoadLocation resolves an IANA zone. The embedded tzdata package covers
// hosts without zoneinfo.
func LoadLocation(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}

// isLocalPath reports whether p is relative and stays inside its root.
func isLocalPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
