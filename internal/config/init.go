package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Config{
		Repository: RepositoryConfig{
			URL:    "https://github.com/example/market-page.git",
			Branch: DefaultBranch,
			Auth:   &AuthConfig{Type: AuthTypeToken, Token: "${GITHUB_TOKEN}"},
		},
		Toolchain: &ToolchainConfig{Command: "python3", Version: "3.12"},
		Dependencies: &DependenciesConfig{
			Manifest: "requirements.txt",
			Install:  []string{"python3", "-m", "pip", "install", "-r", "{manifest}"},
		},
		Generator: GeneratorConfig{
			Command: []string{"python3", "update_html.py"},
			Target:  DefaultTarget,
			Timeout: "5m",
		},
		Commit: CommitConfig{
			AuthorName:  "github-actions",
			AuthorEmail: "github-actions@github.com",
			Message:     "Update index.html",
		},
		Publish: PublishConfig{
			Kind:      PublishGitBranch,
			Directory: ".",
			Branch:    DefaultPagesBranch,
			TokenEnv:  DefaultTokenEnv,
			Exclude:   []string{".github"},
		},
		Triggers: TriggersConfig{
			Schedules: []string{"*/15 * * * *"},
			Push:      &PushTriggerConfig{Path: DefaultPushPath, Secret: "${PAGEREFRESH_WEBHOOK_SECRET}"},
		},
		Daemon:  DaemonConfig{Addr: DefaultAddr, ShutdownTimeout: "30s", WatchConfig: true},
		Storage: StorageConfig{DataDir: DefaultDataDir},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
