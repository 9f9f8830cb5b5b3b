package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Revision      string `help:"Check out this revision instead of the branch tip (as a push trigger would)"`
	KeepWorkspace bool   `name:"keep-workspace" help:"Leave the run workspace on disk for inspection"`
	NoHistory     bool   `name:"no-history" help:"Do not record the run in the run store"`

	out io.Writer
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, runtimeOptions{history: !r.NoHistory, retain: r.KeepWorkspace})
	if err != nil {
		return err
	}
	defer rt.Close()

	job, err := rt.newJob(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	trigger := pipeline.Trigger{Kind: pipeline.TriggerManual, Source: "cli"}
	if r.Revision != "" {
		trigger = pipeline.Trigger{Kind: pipeline.TriggerPush, Source: "cli", Revision: r.Revision}
	}
	run, err := job.Run(ctx, trigger)
	printRun(r.writer(), run)
	return err
}

func (r *RunCmd) writer() io.Writer {
	if r.out != nil {
		return r.out
	}
	return os.Stdout
}

// printRun writes a step table followed by the run outcome.
func printRun(w io.Writer, run *pipeline.Run) {
	if run == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "STEP\tSTATUS\tDURATION\tNOTE\n")
	for _, s := range run.Steps {
		note := s.Note
		if s.Error != "" {
			note = s.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Status, s.Duration.Round(time.Millisecond), note)
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "\nrun %s %s in %s", run.ID, run.Status, run.Duration().Round(time.Millisecond))
	switch {
	case run.Committed:
		_, _ = fmt.Fprintf(w, ", committed %s", shortHash(run.CommitHash))
	case run.Status == pipeline.RunSucceeded:
		_, _ = fmt.Fprint(w, ", nothing to commit")
	}
	if run.Published {
		_, _ = fmt.Fprintf(w, ", published to %s", run.PublishLocation)
	}
	_, _ = fmt.Fprintln(w)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
