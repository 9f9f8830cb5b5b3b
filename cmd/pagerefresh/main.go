package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagerefresh/cmd/pagerefresh/commands"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Logger: slog.Default()}
	parser := kong.Parse(cli,
		kong.Name("pagerefresh"),
		kong.Description("Regenerate a page, commit it when it changed and publish the site."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)

	if err := parser.Run(); err != nil {
		adapter := errors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
		os.Exit(adapter.Report(err))
	}
}
