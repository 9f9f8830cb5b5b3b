package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/daemon"
	"git.home.luguber.info/inful/pagerefresh/internal/metrics"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Addr          string `help:"Admin listen address (overrides daemon.addr)"`
	KeepWorkspace bool   `name:"keep-workspace" help:"Leave run workspaces on disk for inspection"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if d.Addr != "" {
		cfg.Daemon.Addr = d.Addr
	}
	return RunDaemon(cfg, root.Config, d.KeepWorkspace)
}

// RunDaemon hosts the triggers until SIGINT or SIGTERM.
func RunDaemon(cfg *config.Config, configPath string, keepWorkspaces bool) error {
	rt, err := newRuntime(cfg, runtimeOptions{history: true, retain: keepWorkspaces})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dm, err := daemon.New(cfg, rt.runnerFactory(),
		daemon.WithHistory(rt.store),
		daemon.WithMetricsHandler(metrics.HTTPHandler(rt.registry)),
		daemon.WithConfigPath(configPath),
	)
	if err != nil {
		return err
	}
	if err := dm.Start(ctx); err != nil {
		return err
	}

	slog.Info("Daemon running, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping daemon")

	timeout := config.MustDuration(cfg.Daemon.ShutdownTimeout, daemon.DefaultShutdownTimeout)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()
	return dm.Stop(stopCtx)
}
