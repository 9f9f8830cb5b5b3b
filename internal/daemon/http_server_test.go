package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
	"git.home.luguber.info/inful/pagerefresh/internal/publish"
	"git.home.luguber.info/inful/pagerefresh/internal/runstore"
)

type fakeHistory struct {
	mu      sync.Mutex
	runs    map[string]*pipeline.Run
	lastOpt runstore.ListOptions
}

func (h *fakeHistory) Get(_ context.Context, id string) (*pipeline.Run, error) {
	if run, ok := h.runs[id]; ok {
		return run, nil
	}
	return nil, runstore.ErrRunNotFound.WithContext("run_id", id)
}

func (h *fakeHistory) List(_ context.Context, opts runstore.ListOptions) ([]*pipeline.Run, error) {
	h.mu.Lock()
	h.lastOpt = opts
	h.mu.Unlock()
	out := make([]*pipeline.Run, 0, len(h.runs))
	for _, r := range h.runs {
		out = append(out, r)
	}
	return out, nil
}

func (h *fakeHistory) Stats(context.Context) (*runstore.Stats, error) {
	return &runstore.Stats{Total: len(h.runs)}, nil
}

func newHistory() *fakeHistory {
	return &fakeHistory{runs: map[string]*pipeline.Run{
		"r1": {ID: "r1", Status: pipeline.RunSucceeded, Trigger: pipeline.Trigger{Kind: pipeline.TriggerSchedule}},
	}}
}

func serve(t *testing.T, d *Daemon, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	d.routes().ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestAdmin_Health(t *testing.T) {
	d := newTestDaemon(t, parseConfig(t, ""), &fakeRunner{}, WithHistory(newHistory()))

	rr := serve(t, d, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Version)
	require.NotNil(t, resp.History)
	assert.Equal(t, 1, resp.History.Total)
}

func TestAdmin_ListRuns(t *testing.T) {
	history := newHistory()
	d := newTestDaemon(t, parseConfig(t, ""), &fakeRunner{}, WithHistory(history))

	rr := serve(t, d, http.MethodGet, "/runs?limit=5&status=failed&trigger=push")
	require.Equal(t, http.StatusOK, rr.Code)

	var runs []pipeline.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
	assert.Equal(t, runstore.ListOptions{Limit: 5, Status: pipeline.RunFailed, Trigger: pipeline.TriggerPush}, history.lastOpt)
}

func TestAdmin_ListRunsBadLimit(t *testing.T) {
	d := newTestDaemon(t, parseConfig(t, ""), &fakeRunner{}, WithHistory(newHistory()))
	rr := serve(t, d, http.MethodGet, "/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdmin_GetRun(t *testing.T) {
	d := newTestDaemon(t, parseConfig(t, ""), &fakeRunner{}, WithHistory(newHistory()))

	rr := serve(t, d, http.MethodGet, "/runs/r1")
	require.Equal(t, http.StatusOK, rr.Code)
	var run pipeline.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, "r1", run.ID)

	rr = serve(t, d, http.MethodGet, "/runs/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestAdmin_NoHistory(t *testing.T) {
	d := newTestDaemon(t, parseConfig(t, ""), &fakeRunner{})
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, d, http.MethodGet, "/runs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, d, http.MethodGet, "/runs/r1").Code)
}

func TestAdmin_TriggerRun(t *testing.T) {
	runner := &fakeRunner{}
	d := newTestDaemon(t, parseConfig(t, ""), runner)

	rr := serve(t, d, http.MethodPost, "/runs")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Eventually(t, func() bool { return len(runner.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, pipeline.TriggerManual, runner.seen()[0].Kind)
}

func TestAdmin_TriggerRunAndWait(t *testing.T) {
	runner := &fakeRunner{}
	d := newTestDaemon(t, parseConfig(t, ""), runner)

	rr := serve(t, d, http.MethodPost, "/runs?wait=true&pretty=1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "\n  \"id\""), "pretty output expected")

	var run pipeline.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, pipeline.RunSucceeded, run.Status)
	assert.Equal(t, pipeline.TriggerManual, run.Trigger.Kind)
}

func TestAdmin_MetricsAndWebhookRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pagerefresh_commits_total 0\n"))
	})
	cfg := parseConfig(t, `
triggers:
  push:
    path: /hooks/github
`)
	runner := &fakeRunner{}
	d := newTestDaemon(t, cfg, runner, WithMetricsHandler(metrics))

	rr := serve(t, d, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pagerefresh_commits_total")

	rr = httptest.NewRecorder()
	d.routes().ServeHTTP(rr, signedRequest(t, "push", pushBody("refs/heads/main", "feedface", false), ""))
	assert.Equal(t, http.StatusNotFound, rr.Code, "default path is not registered")

	req := signedRequest(t, "push", pushBody("refs/heads/main", "feedface", false), "")
	req.URL.Path = "/hooks/github"
	rr = httptest.NewRecorder()
	d.routes().ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Eventually(t, func() bool { return len(runner.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "feedface", runner.seen()[0].Revision)
}

func TestAdmin_RecoversPanics(t *testing.T) {
	d := newTestDaemon(t, parseConfig(t, ""), &fakeRunner{}, WithHistory(&panicHistory{}))
	rr := serve(t, d, http.MethodGet, "/runs/boom")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type panicHistory struct{ fakeHistory }

func (panicHistory) Get(context.Context, string) (*pipeline.Run, error) { panic("boom") }

func TestAdmin_ServesDirectoryPublication(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "index.html"), []byte("<h1>v2</h1>"), 0o644))
	cfg := parseConfig(t, `
publish:
  kind: directory
  target: `+target+`
`)
	d := newTestDaemon(t, cfg, &fakeRunner{})

	// FileServer redirects explicit index.html requests to the directory.
	rr := serve(t, d, http.MethodGet, "/site/index.html")
	require.Equal(t, http.StatusMovedPermanently, rr.Code)

	rr = serve(t, d, http.MethodGet, "/site/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "<h1>v2</h1>", rr.Body.String())
}

func TestAdmin_ServesOutgoingTreeDuringSwap(t *testing.T) {
	target := filepath.Join(t.TempDir(), "site")
	previous := target + publish.PreviousSuffix
	require.NoError(t, os.MkdirAll(previous, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(previous, "index.html"), []byte("<h1>v1</h1>"), 0o644))
	cfg := parseConfig(t, `
publish:
  kind: directory
  target: `+target+`
`)
	d := newTestDaemon(t, cfg, &fakeRunner{})

	rr := serve(t, d, http.MethodGet, "/site/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "<h1>v1</h1>", rr.Body.String())

	// Once the new tree is in place it wins.
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "index.html"), []byte("<h1>v2</h1>"), 0o644))
	rr = serve(t, d, http.MethodGet, "/site/")
	assert.Equal(t, "<h1>v2</h1>", rr.Body.String())
}
