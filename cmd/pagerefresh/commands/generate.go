package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/pagerefresh/internal/market"
)

// GenerateCmd implements the 'generate' command. It is meant to be the
// configured generator command of a job, run inside the working copy.
type GenerateCmd struct {
	Dir string `short:"C" help:"Directory the output path is relative to" default:"." type:"path"`
}

func (c *GenerateCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	gen, err := market.New(cfg.Market)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_, err = gen.Generate(ctx, c.Dir)
	return err
}
