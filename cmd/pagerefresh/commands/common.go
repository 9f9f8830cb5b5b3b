// Package commands implements the pagerefresh CLI commands.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
)

// Global is passed to every command's Run method.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"pagerefresh.yaml" type:"path" env:"PAGEREFRESH_CONFIG"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format (text or json); defaults to logging.format"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" help:"Execute the refresh-and-publish job once"`
	Daemon   DaemonCmd   `cmd:"" help:"Run schedules, the push webhook and the admin endpoints"`
	Generate GenerateCmd `cmd:"" help:"Run the built-in market page generator"`
	History  HistoryCmd  `cmd:"" help:"Show recorded job runs"`
	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`

	logOut io.Writer
}

// AfterApply runs after flag parsing; set up logging once from flags.
// Commands that load a configuration refine it with loadConfig.
func (c *CLI) AfterApply(g *Global) error {
	g.Logger = c.setupLogging(config.LoggingConfig{Format: config.LogFormat(c.LogFormat)})
	return nil
}

// loadConfig loads the configuration and re-applies logging with its settings.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	logging := cfg.Logging
	if c.LogFormat != "" {
		logging.Format = config.LogFormat(c.LogFormat)
	}
	g.Logger = c.setupLogging(logging)
	return cfg, nil
}

func (c *CLI) setupLogging(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if c.Verbose {
		level = slog.LevelDebug
	}

	out := c.logOut
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
