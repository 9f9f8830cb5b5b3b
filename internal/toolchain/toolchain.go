// Package toolchain verifies that the pinned language runtime is available
// before the generator's dependencies are installed.
package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/process"
)

var versionPattern = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

// Executor is the subset of process.Runner the provisioner needs.
type Executor interface {
	Run(ctx context.Context, c process.Command) (*process.Result, error)
}

// Provisioner checks the runtime named in the toolchain configuration.
type Provisioner struct {
	cfg  *config.ToolchainConfig
	exec Executor
}

// NewProvisioner returns a provisioner for cfg.
func NewProvisioner(cfg *config.ToolchainConfig, exec Executor) *Provisioner {
	return &Provisioner{cfg: cfg, exec: exec}
}

// Ensure runs the version command in dir and returns the detected version.
// The command failing or reporting a version other than the pinned one is a
// toolchain-category error.
func (p *Provisioner) Ensure(ctx context.Context, dir string) (string, error) {
	args := append([]string{p.cfg.Command}, p.cfg.VersionArgs...)
	res, err := p.exec.Run(ctx, process.Command{Args: args, Dir: dir})
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryToolchain, "runtime is not available").
			WithContext("command", p.cfg.Command).
			Build()
	}
	if !res.Success() {
		return "", errors.ToolchainError("runtime version check failed").
			WithContext("command", strings.Join(args, " ")).
			WithContext("exit_code", res.ExitCode).
			WithContext("output", res.Output(5)).
			Build()
	}

	// Some runtimes print their version on stderr.
	found := ParseVersion(string(res.Stdout) + "\n" + string(res.Stderr))
	if found == "" {
		return "", errors.ToolchainError("could not determine runtime version").
			WithContext("command", strings.Join(args, " ")).
			WithContext("output", res.Output(5)).
			Build()
	}
	if !Matches(p.cfg.Version, found) {
		return found, errors.ToolchainError("runtime version does not match pinned version").
			WithContext("pinned", p.cfg.Version).
			WithContext("found", found).
			Build()
	}

	slog.Info("Runtime verified",
		logfields.Command(p.cfg.Command),
		slog.String("version", found),
		slog.String("pinned", p.cfg.Version))
	return found, nil
}

// ParseVersion extracts the first X.Y or X.Y.Z version from version command output.
func ParseVersion(output string) string {
	m := versionPattern.FindStringSubmatch(output)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Matches reports whether found satisfies pinned. A pin with fewer
// components matches any release sharing them ("3.12" matches "3.12.4",
// "3" matches "3.9"); a full X.Y.Z pin must match exactly.
func Matches(pinned, found string) bool {
	pv, fv := canonical(pinned), canonical(found)
	if !semver.IsValid(pv) || !semver.IsValid(fv) {
		return false
	}
	switch strings.Count(strings.TrimPrefix(pinned, "v"), ".") {
	case 0:
		return semver.Major(pv) == semver.Major(fv)
	case 1:
		return semver.MajorMinor(pv) == semver.MajorMinor(fv)
	default:
		return semver.Compare(pv, fv) == 0
	}
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// String describes the pinned runtime for logs and errors.
func (p *Provisioner) String() string {
	return fmt.Sprintf("%s %s", p.cfg.Command, p.cfg.Version)
}
