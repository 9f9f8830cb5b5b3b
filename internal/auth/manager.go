// Package auth turns repository authentication settings into go-git
// transport credentials for checkout, push and the pages branch publisher.
package auth

import (
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// Manager resolves auth configs through the registered providers.
type Manager struct {
	providers map[config.AuthType]Provider
}

// NewManager returns a manager with the none, token, basic and ssh providers.
func NewManager() *Manager {
	m := &Manager{providers: make(map[config.AuthType]Provider)}
	for _, p := range []Provider{noneProvider{}, tokenProvider{}, basicProvider{}, sshProvider{}} {
		m.Register(p)
	}
	return m
}

// Register adds or replaces the provider for its type.
func (m *Manager) Register(p Provider) {
	m.providers[p.Type()] = p
}

// CreateAuth returns the transport credentials for cfg; nil cfg means anonymous.
func (m *Manager) CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg == nil {
		return nil, nil
	}
	p, ok := m.providers[cfg.Type]
	if !ok {
		return nil, errors.AuthError("unsupported authentication type").
			WithContext("type", string(cfg.Type)).
			Build()
	}
	if err := p.Validate(cfg); err != nil {
		return nil, errors.AuthError("invalid authentication configuration").
			WithCause(err).
			WithContext("type", string(cfg.Type)).
			Build()
	}
	method, err := p.CreateAuth(cfg)
	if err != nil {
		return nil, errors.AuthError("failed to create authentication").
			WithCause(err).
			WithContext("type", string(cfg.Type)).
			Build()
	}
	return method, nil
}

// DefaultManager is the process-wide manager.
var DefaultManager = NewManager()

// CreateAuth resolves cfg with DefaultManager.
func CreateAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	return DefaultManager.CreateAuth(cfg)
}

// TokenAuth returns credentials for pushing with a bare token, or nil when
// the token is empty.
func TokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	method, _ := tokenProvider{}.CreateAuth(&config.AuthConfig{Type: config.AuthTypeToken, Token: token})
	return method
}
