package commands

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/daemon"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/metrics"
	"git.home.luguber.info/inful/pagerefresh/internal/notify"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
	"git.home.luguber.info/inful/pagerefresh/internal/runstore"
)

// runtime holds what every job run shares: the event bus with its
// subscribers, the metrics recorder and the run store.
type runtime struct {
	bus      *pipeline.Bus
	registry *prometheus.Registry
	recorder metrics.Recorder
	store    *runstore.SQLiteStore
	notifier *notify.Notifier
	retain   bool
}

type runtimeOptions struct {
	history bool
	retain  bool
}

// newRuntime opens the run store and connects the notifier. A notifier
// that cannot connect is logged and skipped; notifications never decide a
// run's outcome.
func newRuntime(cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{
		bus:      pipeline.NewBus(),
		registry: prometheus.NewRegistry(),
		retain:   opts.retain,
	}
	rt.recorder = metrics.NewPrometheusRecorder(rt.registry)

	if opts.history {
		store, err := runstore.NewSQLiteStore(cfg.Storage.RunsDB)
		if err != nil {
			return nil, err
		}
		rt.store = store
		rt.bus.Subscribe(pipeline.EventRunFinished, store.Handler())
	}

	if cfg.Notify != nil {
		n, err := notify.Connect(cfg.Notify)
		if err != nil {
			slog.Warn("Run notifications disabled", logfields.Error(err))
		} else {
			rt.notifier = n
			rt.bus.Subscribe(pipeline.EventRunFinished, n.Handler())
		}
	}
	return rt, nil
}

// newJob builds a job for cfg wired to the shared runtime.
func (rt *runtime) newJob(cfg *config.Config) (*pipeline.Job, error) {
	return pipeline.NewJob(cfg,
		pipeline.WithBus(rt.bus),
		pipeline.WithRecorder(rt.recorder),
		pipeline.WithRetainedWorkspaces(rt.retain),
	)
}

// runnerFactory adapts newJob for the daemon.
func (rt *runtime) runnerFactory() daemon.RunnerFactory {
	return func(cfg *config.Config) (daemon.Runner, error) {
		job, err := rt.newJob(cfg)
		if err != nil {
			return nil, err
		}
		return job, nil
	}
}

func (rt *runtime) Close() {
	if rt.notifier != nil {
		rt.notifier.Close()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			slog.Warn("Failed to close run store", logfields.Error(err))
		}
	}
}
