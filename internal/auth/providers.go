package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
)

// Provider builds a go-git AuthMethod for one authentication type.
type Provider interface {
	Type() config.AuthType
	Validate(cfg *config.AuthConfig) error
	CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error)
}

type noneProvider struct{}

func (noneProvider) Type() config.AuthType             { return config.AuthTypeNone }
func (noneProvider) Validate(*config.AuthConfig) error { return nil }

func (noneProvider) CreateAuth(*config.AuthConfig) (transport.AuthMethod, error) {
	return nil, nil
}

// tokenProvider sends the token as the password of an HTTP basic auth pair,
// which is what hosted forges accept for personal access tokens.
type tokenProvider struct{}

func (tokenProvider) Type() config.AuthType { return config.AuthTypeToken }

func (tokenProvider) Validate(cfg *config.AuthConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("token authentication requires a token")
	}
	return nil
}

func (tokenProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	username := cfg.Username
	if username == "" {
		username = "token"
	}
	return &http.BasicAuth{Username: username, Password: cfg.Token}, nil
}

type basicProvider struct{}

func (basicProvider) Type() config.AuthType { return config.AuthTypeBasic }

func (basicProvider) Validate(cfg *config.AuthConfig) error {
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("basic authentication requires username and password")
	}
	return nil
}

func (basicProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
}

type sshProvider struct{}

func (sshProvider) Type() config.AuthType { return config.AuthTypeSSH }

func (sshProvider) Validate(cfg *config.AuthConfig) error {
	keyPath := sshKeyPath(cfg)
	if _, err := os.Stat(keyPath); err != nil {
		return fmt.Errorf("ssh key file not readable: %s: %w", keyPath, err)
	}
	return nil
}

func (sshProvider) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	keyPath := sshKeyPath(cfg)
	keys, err := ssh.NewPublicKeysFromFile("git", keyPath, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load ssh key from %s: %w", keyPath, err)
	}
	return keys, nil
}

func sshKeyPath(cfg *config.AuthConfig) string {
	if cfg.KeyPath != "" {
		return cfg.KeyPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ssh", "id_rsa")
}
