package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/pagerefresh/internal/auth"
	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/deps"
	ferrors "git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/generator"
	"git.home.luguber.info/inful/pagerefresh/internal/git"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/metrics"
	"git.home.luguber.info/inful/pagerefresh/internal/process"
	"git.home.luguber.info/inful/pagerefresh/internal/publish"
	"git.home.luguber.info/inful/pagerefresh/internal/toolchain"
	"git.home.luguber.info/inful/pagerefresh/internal/workspace"
)

// Executor runs external processes for the toolchain, dependency and generator steps.
type Executor interface {
	Run(ctx context.Context, c process.Command) (*process.Result, error)
}

// Job runs the refresh-and-publish steps for one configuration. A Job is
// safe for concurrent Run calls; runs share nothing but the bus, recorder
// and publisher.
type Job struct {
	cfg       *config.Config
	exec      Executor
	recorder  metrics.Recorder
	bus       *Bus
	publisher publish.Publisher
	repoAuth  transport.AuthMethod
	retain    bool
}

// Option configures a Job.
type Option func(*Job)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(j *Job) {
		if r != nil {
			j.recorder = r
		}
	}
}

// WithExecutor replaces the process runner.
func WithExecutor(e Executor) Option {
	return func(j *Job) { j.exec = e }
}

// WithBus publishes run events on b.
func WithBus(b *Bus) Option {
	return func(j *Job) { j.bus = b }
}

// WithPublisher replaces the publisher built from configuration; nil disables publishing.
func WithPublisher(p publish.Publisher) Option {
	return func(j *Job) { j.publisher = p }
}

// WithRetainedWorkspaces keeps run workspaces on disk after the run.
func WithRetainedWorkspaces(keep bool) Option {
	return func(j *Job) { j.retain = keep }
}

// NewJob validates credentials and builds the publisher for cfg.
func NewJob(cfg *config.Config, opts ...Option) (*Job, error) {
	repoAuth, err := auth.CreateAuth(cfg.Repository.Auth)
	if err != nil {
		return nil, err
	}
	pubAuth := repoAuth
	if cfg.Publish.Token != "" {
		pubAuth = auth.TokenAuth(cfg.Publish.Token)
	}
	publisher, err := publish.New(cfg.Publish, cfg.Commit, pubAuth)
	if err != nil {
		return nil, err
	}

	j := &Job{
		cfg:       cfg,
		exec:      process.NewRunner(),
		recorder:  metrics.NoopRecorder{},
		bus:       NewBus(),
		publisher: publisher,
		repoAuth:  repoAuth,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Bus returns the bus run events are published on.
func (j *Job) Bus() *Bus { return j.bus }

// runState is what steps hand to each other within one run.
type runState struct {
	run     *Run
	log     *slog.Logger
	ws      *workspace.Manager
	repoDir string
	wc      *git.WorkingCopy
}

// Run executes one job run for trigger. The returned Run is always non-nil
// and finished; err is one of the typed step errors when the run failed.
func (j *Job) Run(ctx context.Context, trigger Trigger) (*Run, error) {
	run := newRun(trigger)
	log := slog.With(logfields.RunID(run.ID), logfields.Trigger(string(trigger.Kind)))
	j.recorder.AddRunsInFlight(1)
	defer j.recorder.AddRunsInFlight(-1)

	log.Info("Run started", logfields.Revision(trigger.Revision), slog.String("source", trigger.Source))
	j.bus.Publish(RunStarted{Run: run})

	st := &runState{run: run, log: log}
	err := j.execute(ctx, st)
	j.finish(st, err)
	return run, err
}

func (j *Job) execute(ctx context.Context, st *runState) error {
	st.ws = workspace.NewManager(j.cfg.Storage.WorkspaceDir, st.run.ID).Retain(j.retain)
	defer func() {
		if err := st.ws.Cleanup(); err != nil {
			st.log.Warn("Workspace cleanup failed", logfields.Error(err))
		}
	}()

	for _, s := range []struct {
		name StepName
		fn   func(context.Context, *runState) (StepStatus, string, error)
	}{
		{StepCheckout, j.checkout},
		{StepToolchain, j.provisionToolchain},
		{StepDependencies, j.installDependencies},
		{StepGenerate, j.generate},
		{StepCommit, j.commit},
		{StepPublish, j.publish},
	} {
		if err := j.step(ctx, st, s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) step(ctx context.Context, st *runState, name StepName, fn func(context.Context, *runState) (StepStatus, string, error)) error {
	start := time.Now()
	status, note, err := fn(ctx, st)
	if err != nil {
		status = StepFailed
	}
	res := StepResult{Name: name, Status: status, Duration: time.Since(start), Note: note}
	if err != nil {
		res.Error = err.Error()
	}
	st.run.Steps = append(st.run.Steps, res)

	j.recorder.ObserveStepDuration(string(name), res.Duration)
	j.recorder.IncStepResult(string(name), metrics.ResultLabel(status))

	attrs := []any{logfields.Step(string(name)), logfields.Status(string(status)), logfields.DurationMS(float64(res.Duration.Milliseconds()))}
	switch {
	case err != nil:
		st.log.Error("Step failed", append(attrs, logfields.Error(err))...)
	case note != "":
		st.log.Info("Step finished", append(attrs, slog.String("note", note))...)
	default:
		st.log.Info("Step finished", attrs...)
	}
	j.bus.Publish(StepFinished{RunID: st.run.ID, Result: res})
	return err
}

func (j *Job) checkout(ctx context.Context, st *runState) (StepStatus, string, error) {
	repo := j.cfg.Repository
	if err := st.ws.Create(); err != nil {
		return StepFailed, "", &CheckoutError{URL: repo.URL, Err: err}
	}
	st.repoDir, _ = st.ws.Subdir("repo")

	wc, err := git.NewClient(j.repoAuth).WithDepth(repo.Depth).
		Checkout(ctx, repo.URL, repo.Branch, st.run.Trigger.Revision, st.repoDir)
	if err != nil {
		category := ferrors.CategoryGit
		var authErr *git.AuthError
		if stderrors.As(err, &authErr) {
			category = ferrors.CategoryAuth
		}
		return StepFailed, "", &CheckoutError{URL: repo.URL, Err: classified(err, category, "checkout failed")}
	}
	st.wc = wc
	head, _ := wc.Head()
	return StepOK, "at " + head.String(), nil
}

func (j *Job) provisionToolchain(ctx context.Context, st *runState) (StepStatus, string, error) {
	tc := j.cfg.Toolchain
	if tc == nil {
		return StepSkipped, "no toolchain configured", nil
	}
	prov := toolchain.NewProvisioner(tc, j.exec)
	found, err := prov.Ensure(ctx, st.repoDir)
	if err != nil {
		return StepFailed, "", &ToolchainError{Pinned: prov.String(), Err: classified(err, ferrors.CategoryToolchain, "toolchain unavailable")}
	}
	return StepOK, tc.Command + " " + found, nil
}

func (j *Job) installDependencies(ctx context.Context, st *runState) (StepStatus, string, error) {
	dc := j.cfg.Dependencies
	if dc == nil {
		return StepSkipped, "no dependency manifest configured", nil
	}
	m, err := deps.NewInstaller(dc, j.exec).Install(ctx, st.repoDir)
	if err != nil {
		return StepFailed, "", &DependencyResolutionError{Manifest: dc.Manifest, Err: classified(err, ferrors.CategoryDependency, "dependency resolution failed")}
	}
	st.log.Debug("Dependencies installed", logfields.File(m.Path), slog.Any("requirements", m.Names()))
	return StepOK, fmt.Sprintf("%d requirements", len(m.Requirements)), nil
}

func (j *Job) generate(ctx context.Context, st *runState) (StepStatus, string, error) {
	out, err := generator.New(&j.cfg.Generator, j.exec).Generate(ctx, st.repoDir)
	if err != nil {
		return StepFailed, "", &GeneratorError{Target: j.cfg.Generator.Target, Err: classified(err, ferrors.CategoryGenerator, "generator failed")}
	}
	return StepOK, fmt.Sprintf("%s written (%d bytes)", out.Target, out.Size), nil
}

func (j *Job) commit(ctx context.Context, st *runState) (StepStatus, string, error) {
	target := j.cfg.Generator.Target
	branch := j.cfg.Repository.Branch

	changed, err := st.wc.FileChanged(target)
	if err != nil {
		return StepFailed, "", &GeneratorError{Target: target, Err: classified(err, ferrors.CategoryGenerator, "cannot read generated target")}
	}
	if !changed {
		return StepSkipped, CommitNoOpCondition{Target: target}.String(), nil
	}

	sig := git.Signature{Name: j.cfg.Commit.AuthorName, Email: j.cfg.Commit.AuthorEmail}
	hash, err := st.wc.CommitFile(target, j.cfg.Commit.Message, sig)
	if err != nil {
		return StepFailed, "", &PushError{Branch: branch, Err: classified(err, ferrors.CategoryGit, "commit failed")}
	}

	if err := st.wc.Push(ctx); err != nil {
		var diverged *git.RemoteDivergedError
		if stderrors.As(err, &diverged) {
			return StepFailed, "", &PushConflictError{Branch: branch, Err: ferrors.WrapError(err, ferrors.CategoryConflict, "remote branch diverged").Build()}
		}
		category := ferrors.CategoryGit
		var authErr *git.AuthError
		if stderrors.As(err, &authErr) {
			category = ferrors.CategoryAuth
		}
		return StepFailed, "", &PushError{Branch: branch, Err: classified(err, category, "push failed")}
	}

	st.run.Committed = true
	st.run.CommitHash = hash.String()
	j.recorder.IncCommit()
	return StepOK, "committed " + hash.String(), nil
}

func (j *Job) publish(ctx context.Context, st *runState) (StepStatus, string, error) {
	if j.publisher == nil {
		return StepSkipped, "publishing disabled", nil
	}
	scratch, _ := st.ws.Subdir("publish")
	head, _ := st.wc.Head()
	pub, err := j.publisher.Publish(ctx, publish.Request{
		SourceDir:    filepath.Join(st.repoDir, filepath.FromSlash(j.cfg.Publish.Directory)),
		ScratchDir:   scratch,
		SourceCommit: head.String(),
	})
	if err != nil {
		return StepFailed, "", &PublishError{Publisher: string(j.cfg.Publish.Kind), Err: classified(err, ferrors.CategoryPublish, "publish failed")}
	}
	st.run.Published = true
	st.run.PublishLocation = pub.Location
	j.recorder.IncPublication(pub.Changed)
	if !pub.Changed {
		return StepOK, "site already up to date", nil
	}
	return StepOK, "", nil
}

func (j *Job) finish(st *runState, err error) {
	run := st.run
	run.FinishedAt = time.Now().UTC()
	outcome := metrics.RunSucceeded
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		run.ErrorCategory = string(ferrors.GetCategory(err))
		if n := len(run.Steps); n > 0 && run.Steps[n-1].Status == StepFailed {
			run.FailedStep = run.Steps[n-1].Name
		}
		outcome = metrics.RunFailed
	} else {
		run.Status = RunSucceeded
	}

	j.recorder.ObserveRunDuration(run.Duration())
	j.recorder.IncRunOutcome(string(run.Trigger.Kind), outcome)

	attrs := []any{
		logfields.Status(string(run.Status)),
		slog.Bool("committed", run.Committed),
		slog.Bool("published", run.Published),
		logfields.DurationMS(float64(run.Duration().Milliseconds())),
	}
	if err != nil {
		st.log.Error("Run failed", append(attrs, logfields.Step(string(run.FailedStep)), logfields.Error(err))...)
	} else {
		st.log.Info("Run finished", attrs...)
	}
	j.bus.Publish(RunFinished{Run: run})
}
