package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

func TestManager_CreateAuth(t *testing.T) {
	manager := NewManager()

	tests := []struct {
		name        string
		authConfig  *config.AuthConfig
		expectNil   bool
		expectError bool
	}{
		{name: "nil config", authConfig: nil, expectNil: true},
		{name: "none auth", authConfig: &config.AuthConfig{Type: config.AuthTypeNone}, expectNil: true},
		{name: "token auth", authConfig: &config.AuthConfig{Type: config.AuthTypeToken, Token: "t0k"}},
		{name: "token auth missing token", authConfig: &config.AuthConfig{Type: config.AuthTypeToken}, expectNil: true, expectError: true},
		{name: "basic auth", authConfig: &config.AuthConfig{Type: config.AuthTypeBasic, Username: "u", Password: "p"}},
		{name: "basic auth missing username", authConfig: &config.AuthConfig{Type: config.AuthTypeBasic, Password: "p"}, expectNil: true, expectError: true},
		{name: "ssh missing key", authConfig: &config.AuthConfig{Type: config.AuthTypeSSH, KeyPath: "/nonexistent/id_rsa"}, expectNil: true, expectError: true},
		{name: "unsupported type", authConfig: &config.AuthConfig{Type: "kerberos"}, expectNil: true, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, err := manager.CreateAuth(tt.authConfig)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error")
				}
				if !errors.HasCategory(err, errors.CategoryAuth) {
					t.Errorf("expected auth category, got %v", errors.GetCategory(err))
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.expectNil && method != nil {
				t.Errorf("expected nil auth, got %T", method)
			}
			if !tt.expectNil && method == nil {
				t.Errorf("expected auth method")
			}
		})
	}
}

func TestTokenAuth(t *testing.T) {
	if TokenAuth("") != nil {
		t.Error("empty token should give anonymous access")
	}
	basic, ok := TokenAuth("secret").(*http.BasicAuth)
	if !ok {
		t.Fatalf("expected *http.BasicAuth")
	}
	if basic.Username != "token" || basic.Password != "secret" {
		t.Errorf("unexpected credentials %q/%q", basic.Username, basic.Password)
	}
}

func TestSSHProvider_InvalidKey(t *testing.T) {
	key := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(key, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewManager().CreateAuth(&config.AuthConfig{Type: config.AuthTypeSSH, KeyPath: key})
	if err == nil {
		t.Fatal("expected error for malformed key")
	}
}
