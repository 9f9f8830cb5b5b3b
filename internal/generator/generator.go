// Package generator runs the external page generator inside a working copy
// and checks that it produced the target file.
package generator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/process"
)

// Executor is the subset of process.Runner the generator needs.
type Executor interface {
	Run(ctx context.Context, c process.Command) (*process.Result, error)
}

// Output describes a successful generator run.
type Output struct {
	Target string
	Size   int64
	Result *process.Result
}

// Generator invokes the configured command with no extra arguments.
type Generator struct {
	cfg  *config.GeneratorConfig
	exec Executor
}

// New returns a generator for cfg.
func New(cfg *config.GeneratorConfig, exec Executor) *Generator {
	return &Generator{cfg: cfg, exec: exec}
}

// Generate runs the generator in dir. A non-zero exit, or a target file
// missing afterwards, is a generator-category error; the working copy is
// left as the generator wrote it.
func (g *Generator) Generate(ctx context.Context, dir string) (*Output, error) {
	cmd := process.Command{
		Args:    g.cfg.Command,
		Dir:     dir,
		Env:     g.cfg.Env,
		Timeout: config.MustDuration(g.cfg.Timeout, 0),
	}
	slog.Info("Running generator", logfields.Command(cmd.String()), logfields.File(g.cfg.Target))

	res, err := g.exec.Run(ctx, cmd)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGenerator, "generator did not complete").
			WithContext("command", cmd.String()).
			Build()
	}
	if !res.Success() {
		return nil, errors.GeneratorError("generator exited with non-zero status").
			WithContext("command", cmd.String()).
			WithContext("exit_code", res.ExitCode).
			WithContext("output", res.Output(10)).
			Build()
	}

	targetPath := filepath.Join(dir, filepath.FromSlash(g.cfg.Target))
	info, err := os.Stat(targetPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGenerator, "generator did not produce the target file").
			WithContext("target", g.cfg.Target).
			Build()
	}
	if info.IsDir() {
		return nil, errors.GeneratorError("generator target is a directory").
			WithContext("target", g.cfg.Target).
			Build()
	}

	slog.Debug("Generator finished",
		logfields.File(g.cfg.Target),
		slog.Int64("bytes", info.Size()),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return &Output{Target: g.cfg.Target, Size: info.Size(), Result: res}, nil
}
