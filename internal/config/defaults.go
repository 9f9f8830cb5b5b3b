package config

import "path/filepath"

const (
	DefaultBranch        = "main"
	DefaultTarget        = "index.html"
	DefaultPagesBranch   = "gh-pages"
	DefaultTokenEnv      = "PAGEREFRESH_PUBLISH_TOKEN"
	DefaultPushPath      = "/webhooks/push"
	DefaultAddr          = ":8090"
	DefaultDataDir       = "./pagerefresh-data"
	DefaultNotifySubject = "pagerefresh.runs"
	DefaultMarketPageURL = "https://www.ote-cr.cz/cs/kratkodobe-trhy/elektrina/vnitrodenni-trh"
	DefaultMarketBaseURL = "https://www.ote-cr.cz"
	DefaultTimezone      = "Europe/Prague"

	// ManifestPlaceholder is replaced by the manifest path in dependencies.install.
	ManifestPlaceholder = "{manifest}"
)

func applyDefaults(cfg *Config) {
	if cfg.Repository.Branch == "" {
		cfg.Repository.Branch = DefaultBranch
	}
	if cfg.Repository.Auth != nil {
		cfg.Repository.Auth.Type = authTypeNormalizer.Normalize(string(cfg.Repository.Auth.Type))
	}

	if cfg.Toolchain != nil && len(cfg.Toolchain.VersionArgs) == 0 {
		cfg.Toolchain.VersionArgs = []string{"--version"}
	}
	if cfg.Dependencies != nil && len(cfg.Dependencies.Install) == 0 {
		interpreter := "python3"
		if cfg.Toolchain != nil {
			interpreter = cfg.Toolchain.Command
		}
		cfg.Dependencies.Install = []string{interpreter, "-m", "pip", "install", "-r", ManifestPlaceholder}
	}

	if cfg.Generator.Target == "" {
		cfg.Generator.Target = DefaultTarget
	}
	cfg.Generator.Target = filepath.ToSlash(filepath.Clean(cfg.Generator.Target))

	if cfg.Commit.AuthorName == "" {
		cfg.Commit.AuthorName = "pagerefresh"
	}
	if cfg.Commit.AuthorEmail == "" {
		cfg.Commit.AuthorEmail = "pagerefresh@users.noreply.localhost"
	}
	if cfg.Commit.Message == "" {
		cfg.Commit.Message = "Update " + cfg.Generator.Target
	}

	cfg.Publish.Kind = publishKindNormalizer.Normalize(string(cfg.Publish.Kind))
	if cfg.Publish.Directory == "" {
		cfg.Publish.Directory = "."
	}
	if cfg.Publish.Remote == "" {
		cfg.Publish.Remote = cfg.Repository.URL
	}
	if cfg.Publish.Branch == "" {
		cfg.Publish.Branch = DefaultPagesBranch
	}
	if cfg.Publish.TokenEnv == "" {
		cfg.Publish.TokenEnv = DefaultTokenEnv
	}

	if cfg.Triggers.Push != nil {
		if cfg.Triggers.Push.Path == "" {
			cfg.Triggers.Push.Path = DefaultPushPath
		}
		if cfg.Triggers.Push.Branch == "" {
			cfg.Triggers.Push.Branch = cfg.Repository.Branch
		}
	}

	if cfg.Daemon.Addr == "" {
		cfg.Daemon.Addr = DefaultAddr
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
	if cfg.Storage.RunsDB == "" {
		cfg.Storage.RunsDB = filepath.Join(cfg.Storage.DataDir, "runs.db")
	}
	if cfg.Notify != nil && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))

	if cfg.Market.PageURL == "" {
		cfg.Market.PageURL = DefaultMarketPageURL
	}
	if cfg.Market.BaseURL == "" {
		cfg.Market.BaseURL = DefaultMarketBaseURL
	}
	if cfg.Market.Timezone == "" {
		cfg.Market.Timezone = DefaultTimezone
	}
	if cfg.Market.Output == "" {
		cfg.Market.Output = cfg.Generator.Target
	}
	if cfg.Market.Title == "" {
		cfg.Market.Title = "Electricity Market Data"
	}
}
