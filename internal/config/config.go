// Package config loads and validates the pagerefresh YAML configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// Config is the root of pagerefresh.yaml.
type Config struct {
	Repository   RepositoryConfig    `yaml:"repository"`
	Toolchain    *ToolchainConfig    `yaml:"toolchain,omitempty"`
	Dependencies *DependenciesConfig `yaml:"dependencies,omitempty"`
	Generator    GeneratorConfig     `yaml:"generator"`
	Commit       CommitConfig        `yaml:"commit"`
	Publish      PublishConfig       `yaml:"publish"`
	Triggers     TriggersConfig      `yaml:"triggers"`
	Daemon       DaemonConfig        `yaml:"daemon"`
	Storage      StorageConfig       `yaml:"storage"`
	Notify       *NotifyConfig       `yaml:"notify,omitempty"`
	Logging      LoggingConfig       `yaml:"logging"`
	Market       MarketConfig        `yaml:"market"`
}

// RepositoryConfig describes the repository the job checks out, commits to and pushes to.
type RepositoryConfig struct {
	URL    string      `yaml:"url"`
	Branch string      `yaml:"branch,omitempty"`
	Auth   *AuthConfig `yaml:"auth,omitempty"`
	Depth  int         `yaml:"depth,omitempty"` // Shallow clone depth, 0 = full history
}

// AuthConfig represents git transport authentication.
type AuthConfig struct {
	Type     AuthType `yaml:"type"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
}

// ToolchainConfig pins the interpreter the generator runs on.
type ToolchainConfig struct {
	Command     string   `yaml:"command"`
	Version     string   `yaml:"version"`
	VersionArgs []string `yaml:"version_args,omitempty"`
}

// DependenciesConfig names the requirement manifest and the command that installs it.
// The literal {manifest} in Install is replaced by the manifest path.
type DependenciesConfig struct {
	Manifest string   `yaml:"manifest"`
	Install  []string `yaml:"install,omitempty"`
	Timeout  string   `yaml:"timeout,omitempty"`
}

// GeneratorConfig describes the external generator invocation.
type GeneratorConfig struct {
	Command []string          `yaml:"command"`
	Target  string            `yaml:"target"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout string            `yaml:"timeout,omitempty"`
}

// CommitConfig holds the fixed commit identity and message.
type CommitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	Message     string `yaml:"message"`
}

// PublishConfig selects and configures the publisher.
type PublishConfig struct {
	Kind      PublishKind `yaml:"kind"`
	Directory string      `yaml:"directory,omitempty"` // Relative to the working copy
	Exclude   []string    `yaml:"exclude,omitempty"`

	// git-branch publisher
	Remote   string `yaml:"remote,omitempty"` // Defaults to repository.url
	Branch   string `yaml:"branch,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Token    string `yaml:"-"` // Resolved from TokenEnv at load time

	// directory publisher
	Target string `yaml:"target,omitempty"`

	GitHubPages *GitHubPagesConfig `yaml:"github_pages,omitempty"`
}

// GitHubPagesConfig enables a Pages build request after a git-branch publication.
type GitHubPagesConfig struct {
	Owner       string `yaml:"owner"`
	Repo        string `yaml:"repo"`
	APIURL      string `yaml:"api_url,omitempty"`
	MinInterval string `yaml:"min_interval,omitempty"`
}

// TriggersConfig lists what starts a job run.
type TriggersConfig struct {
	Schedules []string           `yaml:"schedules,omitempty"`
	Push      *PushTriggerConfig `yaml:"push,omitempty"`
}

// PushTriggerConfig configures the push webhook endpoint.
type PushTriggerConfig struct {
	Path   string `yaml:"path,omitempty"`
	Secret string `yaml:"secret,omitempty"`
	Branch string `yaml:"branch,omitempty"` // Defaults to repository.branch
}

// DaemonConfig configures the long-running trigger host.
type DaemonConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
	WatchConfig     bool   `yaml:"watch_config"`
}

// StorageConfig configures local state locations.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	RunsDB       string `yaml:"runs_db,omitempty"`
	WorkspaceDir string `yaml:"workspace_dir,omitempty"`
}

// NotifyConfig enables run notifications over NATS.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject,omitempty"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MarketConfig configures the built-in intraday market page generator.
type MarketConfig struct {
	PageURL  string `yaml:"page_url"`
	BaseURL  string `yaml:"base_url"`
	Timezone string `yaml:"timezone"`
	Output   string `yaml:"output"`
	Title    string `yaml:"title"`
	Note     string `yaml:"note,omitempty"` // Markdown rendered under the data
	Timeout  string `yaml:"timeout,omitempty"`
}

// Load reads, expands, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// envRef matches ${VAR}. Bare $VAR is left alone so shell snippets in
// commands reach the shell intact.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Parse decodes configuration bytes with ${VAR} expansion, then applies defaults and validation.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	applyDefaults(&cfg)
	cfg.Publish.Token = os.Getenv(cfg.Publish.TokenEnv)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseDuration parses a configured duration, returning def for empty input.
func ParseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return d, nil
}

// MustDuration is ParseDuration for values already checked by Validate.
func MustDuration(raw string, def time.Duration) time.Duration {
	d, err := ParseDuration(raw, def)
	if err != nil {
		return def
	}
	return d
}
