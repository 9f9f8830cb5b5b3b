package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
	"git.home.luguber.info/inful/pagerefresh/internal/runstore"
)

func writeConfig(t *testing.T, dataDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagerefresh.yaml")
	body := "repository:\n  url: https://example.com/site.git\n" +
		"generator:\n  command: [\"python3\", \"update_html.py\"]\n" +
		"publish:\n  kind: none\n" +
		"storage:\n  data_dir: " + dataDir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func seedRuns(t *testing.T, dbPath string, runs ...*pipeline.Run) {
	t.Helper()
	store, err := runstore.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()
	for _, r := range runs {
		require.NoError(t, store.Save(t.Context(), r))
	}
}

func sampleRun(id string, status pipeline.RunStatus, started time.Time) *pipeline.Run {
	r := &pipeline.Run{
		ID:         id,
		Trigger:    pipeline.Trigger{Kind: pipeline.TriggerSchedule, Source: "*/15 * * * *"},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Status:     status,
		Steps: []pipeline.StepResult{
			{Name: pipeline.StepCheckout, Status: pipeline.StepOK, Duration: time.Second},
			{Name: pipeline.StepGenerate, Status: pipeline.StepOK, Duration: 2 * time.Second},
		},
	}
	if status == pipeline.RunFailed {
		r.Steps[1].Status = pipeline.StepFailed
		r.Steps[1].Error = "generator exited with status 1"
		r.FailedStep = pipeline.StepGenerate
	}
	return r
}

func TestRunInit(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	path := filepath.Join(t.TempDir(), "pagerefresh.yaml")

	require.NoError(t, RunInit(path, false))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://github.com/example/market-page.git", cfg.Repository.URL)
	require.Equal(t, []string{"*/15 * * * *"}, cfg.Triggers.Schedules)

	require.Error(t, RunInit(path, false), "existing file must not be overwritten")
	require.NoError(t, RunInit(path, true))
}

func TestInitCmd_OutputDirectory(t *testing.T) {
	dir := t.TempDir()
	cmd := &InitCmd{Output: dir}
	require.NoError(t, cmd.Run(&Global{}, &CLI{Config: "unused.yaml"}))
	require.FileExists(t, filepath.Join(dir, "pagerefresh.yaml"))
}

func TestPrintRun(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("committed and published", func(t *testing.T) {
		run := sampleRun("r1", pipeline.RunSucceeded, started)
		run.Committed = true
		run.CommitHash = "0123456789abcdef0123"
		run.Published = true
		run.PublishLocation = "gh-pages"

		var buf bytes.Buffer
		printRun(&buf, run)
		out := buf.String()
		require.Contains(t, out, "STEP")
		require.Contains(t, out, "checkout")
		require.Contains(t, out, "run r1 succeeded in 3s, committed 0123456789ab, published to gh-pages")
	})

	t.Run("unchanged output", func(t *testing.T) {
		var buf bytes.Buffer
		printRun(&buf, sampleRun("r2", pipeline.RunSucceeded, started))
		require.Contains(t, buf.String(), "nothing to commit")
	})

	t.Run("failed step shows error", func(t *testing.T) {
		var buf bytes.Buffer
		printRun(&buf, sampleRun("r3", pipeline.RunFailed, started))
		out := buf.String()
		require.Contains(t, out, "generator exited with status 1")
		require.Contains(t, out, "run r3 failed")
		require.NotContains(t, out, "nothing to commit")
	})

	t.Run("nil run prints nothing", func(t *testing.T) {
		var buf bytes.Buffer
		printRun(&buf, nil)
		require.Empty(t, buf.String())
	})
}

func TestHistoryCmd(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := writeConfig(t, dataDir)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedRuns(t, filepath.Join(dataDir, "runs.db"),
		sampleRun("older", pipeline.RunSucceeded, started),
		sampleRun("newer", pipeline.RunFailed, started.Add(time.Hour)),
	)
	root := &CLI{Config: cfgPath, logOut: &bytes.Buffer{}}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		cmd := &HistoryCmd{Limit: 20, out: &buf}
		require.NoError(t, cmd.Run(&Global{}, root))
		out := buf.String()
		require.Contains(t, out, "FAILED STEP")
		require.Less(t, bytes.Index(buf.Bytes(), []byte("newer")), bytes.Index(buf.Bytes(), []byte("older")))
	})

	t.Run("json with status filter", func(t *testing.T) {
		var buf bytes.Buffer
		cmd := &HistoryCmd{Limit: 20, Status: "failed", JSON: true, out: &buf}
		require.NoError(t, cmd.Run(&Global{}, root))
		var runs []pipeline.Run
		require.NoError(t, json.Unmarshal(buf.Bytes(), &runs))
		require.Len(t, runs, 1)
		require.Equal(t, "newer", runs[0].ID)
		require.Equal(t, pipeline.StepGenerate, runs[0].FailedStep)
	})

	t.Run("single run", func(t *testing.T) {
		var buf bytes.Buffer
		cmd := &HistoryCmd{ID: "older", out: &buf}
		require.NoError(t, cmd.Run(&Global{}, root))
		require.Contains(t, buf.String(), "run older succeeded")
	})

	t.Run("prune rejects bad age", func(t *testing.T) {
		cmd := &HistoryCmd{Prune: "soon", out: &bytes.Buffer{}}
		require.Error(t, cmd.Run(&Global{}, root))
	})

	t.Run("unknown run", func(t *testing.T) {
		cmd := &HistoryCmd{ID: "missing", out: &bytes.Buffer{}}
		require.Error(t, cmd.Run(&Global{}, root))
	})
}

func TestHistoryCmd_Prune(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := writeConfig(t, dataDir)
	now := time.Now().UTC()
	seedRuns(t, filepath.Join(dataDir, "runs.db"),
		sampleRun("ancient", pipeline.RunSucceeded, now.Add(-90*24*time.Hour)),
		sampleRun("recent", pipeline.RunSucceeded, now.Add(-time.Hour)),
	)
	root := &CLI{Config: cfgPath, logOut: &bytes.Buffer{}}

	var buf bytes.Buffer
	require.NoError(t, (&HistoryCmd{Prune: "720h", out: &buf}).Run(&Global{}, root))
	require.Equal(t, "pruned 1 runs\n", buf.String())

	buf.Reset()
	require.NoError(t, (&HistoryCmd{Limit: 20, JSON: true, out: &buf}).Run(&Global{}, root))
	var runs []pipeline.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &runs))
	require.Len(t, runs, 1)
	require.Equal(t, "recent", runs[0].ID)
}

func TestPrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	require.Equal(t, "no runs recorded\n", buf.String())
}

func TestLoadConfig_LogFormatFlagWins(t *testing.T) {
	var logs bytes.Buffer
	root := &CLI{Config: writeConfig(t, t.TempDir()), LogFormat: "json", logOut: &logs}
	g := &Global{}
	_, err := root.loadConfig(g)
	require.NoError(t, err)

	g.Logger.Info("hello")
	require.Contains(t, logs.String(), `"msg":"hello"`)
}
