package daemon

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
	"git.home.luguber.info/inful/pagerefresh/internal/runstore"
)

// DefaultShutdownTimeout bounds how long Stop waits for in-flight runs
// before cancelling them.
const DefaultShutdownTimeout = 30 * time.Second

// Runner executes one job run.
type Runner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Run, error)
}

// RunnerFactory builds a Runner for a configuration. It is called once at
// construction and again on every configuration reload.
type RunnerFactory func(cfg *config.Config) (Runner, error)

// History is the read side of the run store.
type History interface {
	Get(ctx context.Context, id string) (*pipeline.Run, error)
	List(ctx context.Context, opts runstore.ListOptions) ([]*pipeline.Run, error)
	Stats(ctx context.Context) (*runstore.Stats, error)
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithHistory serves run history on the admin endpoints.
func WithHistory(h History) Option {
	return func(d *Daemon) { d.history = h }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(d *Daemon) { d.metrics = h }
}

// WithConfigPath enables reloading from path when daemon.watch_config is set.
func WithConfigPath(path string) Option {
	return func(d *Daemon) { d.configPath = path }
}

// Daemon hosts schedules, the push webhook and the admin endpoints.
type Daemon struct {
	factory    RunnerFactory
	history    History
	metrics    http.Handler
	configPath string

	mu       sync.RWMutex
	cfg      *config.Config
	runner   Runner
	stopping bool

	scheduler    *Scheduler
	watcher      *ConfigWatcher
	server       *http.Server
	listener     net.Listener
	errorAdapter *errors.HTTPErrorAdapter

	runCtx     context.Context
	cancelRuns context.CancelFunc
	runs       sync.WaitGroup
	inFlight   atomic.Int32
	startTime  time.Time
}

// New builds a daemon for cfg. Nothing runs until Start.
func New(cfg *config.Config, factory RunnerFactory, opts ...Option) (*Daemon, error) {
	if factory == nil {
		return nil, errors.InternalError("runner factory is required").Build()
	}
	runner, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	scheduler, err := NewScheduler()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to create scheduler").Build()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		factory:      factory,
		cfg:          cfg,
		runner:       runner,
		scheduler:    scheduler,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
		runCtx:       runCtx,
		cancelRuns:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Addr returns the bound admin address once started.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// StartTime returns when Start was called.
func (d *Daemon) StartTime() time.Time { return d.startTime }

// Start registers schedules, binds the HTTP listener and, when enabled,
// starts the configuration watcher.
func (d *Daemon) Start(ctx context.Context) error {
	cfg := d.Config()
	d.startTime = time.Now()

	if err := d.scheduler.Replace(cfg.Triggers.Schedules, d.scheduledTrigger); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to register schedules").Build()
	}

	ln, err := net.Listen("tcp", cfg.Daemon.Addr)
	if err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "failed to bind admin address").
			WithContext("addr", cfg.Daemon.Addr).
			Build()
	}
	d.listener = ln
	d.server = &http.Server{
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := d.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("Admin server stopped", logfields.Error(err))
		}
	}()

	d.scheduler.Start()

	if cfg.Daemon.WatchConfig && d.configPath != "" {
		w, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			slog.Warn("Configuration watcher disabled", logfields.Error(err))
		} else if err := w.Start(ctx); err != nil {
			slog.Warn("Configuration watcher disabled", logfields.Error(err))
		} else {
			d.watcher = w
		}
	}

	slog.Info("Daemon started",
		slog.String("addr", ln.Addr().String()),
		slog.Int("schedules", len(cfg.Triggers.Schedules)),
		slog.Bool("push_webhook", cfg.Triggers.Push != nil))
	return nil
}

// Stop stops accepting triggers, shuts the HTTP server down and waits for
// in-flight runs. When ctx ends first the runs are cancelled, which kills
// their child processes, and Stop waits for them to unwind.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopping = true
	d.mu.Unlock()

	var errs []error
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		d.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Shutdown deadline reached, cancelling in-flight runs")
		d.cancelRuns()
		<-done
	}
	d.cancelRuns()

	slog.Info("Daemon stopped")
	return stderrors.Join(errs...)
}

// Trigger starts one run in the background. It returns false once the
// daemon is stopping.
func (d *Daemon) Trigger(trigger pipeline.Trigger) bool {
	runner, ok := d.acquire()
	if !ok {
		return false
	}
	go func() {
		defer d.runs.Done()
		d.execute(runner, trigger)
	}()
	return true
}

// RunNow executes one run and waits for it.
func (d *Daemon) RunNow(trigger pipeline.Trigger) (*pipeline.Run, error) {
	runner, ok := d.acquire()
	if !ok {
		return nil, errors.DaemonError("daemon is shutting down").Build()
	}
	defer d.runs.Done()
	return d.execute(runner, trigger)
}

func (d *Daemon) acquire() (Runner, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopping {
		return nil, false
	}
	d.runs.Add(1)
	return d.runner, true
}

func (d *Daemon) execute(runner Runner, trigger pipeline.Trigger) (*pipeline.Run, error) {
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	run, err := runner.Run(d.runCtx, trigger)
	if err != nil {
		slog.Debug("Triggered run failed", logfields.Trigger(string(trigger.Kind)), logfields.Error(err))
	}
	return run, err
}

func (d *Daemon) scheduledTrigger(expr string) {
	if !d.Trigger(pipeline.Trigger{Kind: pipeline.TriggerSchedule, Source: expr}) {
		slog.Warn("Schedule fired during shutdown, run not started", logfields.Schedule(expr))
	}
}

// InFlight returns the number of runs executing, including runs started
// before the last configuration reload.
func (d *Daemon) InFlight() int { return int(d.inFlight.Load()) }

// Schedules lists the registered cron entries.
func (d *Daemon) Schedules() []ScheduleInfo { return d.scheduler.Schedules() }

// ReloadConfig rebuilds the runner and replaces the schedules. Runs already
// executing finish with the configuration they started with. The admin
// address is bound once and does not change on reload.
func (d *Daemon) ReloadConfig(cfg *config.Config) error {
	runner, err := d.factory(cfg)
	if err != nil {
		return err
	}
	if err := d.scheduler.Replace(cfg.Triggers.Schedules, d.scheduledTrigger); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to register schedules").Build()
	}

	d.mu.Lock()
	old := d.cfg
	d.cfg = cfg
	d.runner = runner
	d.mu.Unlock()

	if old != nil && old.Daemon.Addr != cfg.Daemon.Addr {
		slog.Warn("daemon.addr changed; restart to rebind", slog.String("addr", old.Daemon.Addr))
	}
	if old != nil && pushPath(old) != pushPath(cfg) {
		slog.Warn("Push webhook path changed; restart to re-register the route", slog.String("path", pushPath(old)))
	}
	slog.Info("Configuration applied", slog.Int("schedules", len(cfg.Triggers.Schedules)))
	return nil
}

func pushPath(cfg *config.Config) string {
	if cfg.Triggers.Push == nil {
		return ""
	}
	return cfg.Triggers.Push.Path
}
