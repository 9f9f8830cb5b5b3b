package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
	"git.home.luguber.info/inful/pagerefresh/internal/runstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit   int    `short:"n" help:"Number of runs to show" default:"20"`
	Status  string `help:"Only show runs with this status (succeeded or failed)"`
	Trigger string `help:"Only show runs started by this trigger (schedule, push or manual)"`
	ID      string `arg:"" optional:"" help:"Show a single run in full"`
	JSON    bool   `name:"json" help:"Print JSON instead of a table"`
	Prune   string `help:"Delete runs that started longer ago than this duration (e.g. 720h) and exit"`

	out io.Writer
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	store, err := runstore.NewSQLiteStore(cfg.Storage.RunsDB)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	w := h.writer()
	if h.Prune != "" {
		age, err := config.ParseDuration(h.Prune, 0)
		if err != nil || age <= 0 {
			return errors.ValidationError("prune age must be a positive duration").
				WithContext("value", h.Prune).
				Build()
		}
		n, err := store.Prune(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "pruned %d runs\n", n)
		return nil
	}
	if h.ID != "" {
		run, err := store.Get(ctx, h.ID)
		if err != nil {
			return err
		}
		if h.JSON {
			return writeIndented(w, run)
		}
		printRun(w, run)
		return nil
	}

	runs, err := store.List(ctx, runstore.ListOptions{
		Limit:   h.Limit,
		Status:  pipeline.RunStatus(h.Status),
		Trigger: pipeline.TriggerKind(h.Trigger),
	})
	if err != nil {
		return err
	}
	if h.JSON {
		if runs == nil {
			runs = []*pipeline.Run{}
		}
		return writeIndented(w, runs)
	}
	printHistory(w, runs)
	return nil
}

func (h *HistoryCmd) writer() io.Writer {
	if h.out != nil {
		return h.out
	}
	return os.Stdout
}

func printHistory(w io.Writer, runs []*pipeline.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tSTARTED\tTRIGGER\tSTATUS\tCOMMIT\tFAILED STEP\n")
	for _, r := range runs {
		commit := "-"
		if r.Committed {
			commit = shortHash(r.CommitHash)
		}
		failed := string(r.FailedStep)
		if failed == "" {
			failed = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Trigger.Kind, r.Status, commit, failed)
	}
	_ = tw.Flush()
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
