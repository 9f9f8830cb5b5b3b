package deps

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/process"
)

// Executor is the subset of process.Runner the installer needs.
type Executor interface {
	Run(ctx context.Context, c process.Command) (*process.Result, error)
}

// Installer resolves the manifest inside a working copy.
type Installer struct {
	cfg     *config.DependenciesConfig
	exec    Executor
	timeout time.Duration
}

// NewInstaller returns an installer for cfg.
func NewInstaller(cfg *config.DependenciesConfig, exec Executor) *Installer {
	return &Installer{
		cfg:     cfg,
		exec:    exec,
		timeout: config.MustDuration(cfg.Timeout, 0),
	}
}

// Install parses the manifest in dir and runs the install command.
// A missing or unparsable manifest or a failing installer yields a
// dependency-category error.
func (i *Installer) Install(ctx context.Context, dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, filepath.FromSlash(i.cfg.Manifest))
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	args := make([]string, len(i.cfg.Install))
	for n, a := range i.cfg.Install {
		args[n] = strings.ReplaceAll(a, config.ManifestPlaceholder, i.cfg.Manifest)
	}
	cmd := process.Command{Args: args, Dir: dir, Timeout: i.timeout}

	slog.Info("Installing dependencies",
		logfields.File(i.cfg.Manifest),
		slog.Int("requirements", len(m.Requirements)),
		logfields.Command(cmd.String()))

	res, err := i.exec.Run(ctx, cmd)
	if err != nil {
		return m, errors.WrapError(err, errors.CategoryDependency, "dependency installer did not complete").
			WithContext("command", cmd.String()).
			Build()
	}
	if !res.Success() {
		return m, errors.DependencyError("dependency resolution failed").
			WithContext("command", cmd.String()).
			WithContext("exit_code", res.ExitCode).
			WithContext("output", res.Output(10)).
			Build()
	}
	return m, nil
}
