package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
	"git.home.luguber.info/inful/pagerefresh/internal/publish"
	"git.home.luguber.info/inful/pagerefresh/internal/runstore"
	"git.home.luguber.info/inful/pagerefresh/internal/version"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	InFlight  int             `json:"in_flight"`
	Schedules []ScheduleInfo  `json:"schedules"`
	History   *runstore.Stats `json:"history,omitempty"`
}

// TriggerResponse is returned when a manual run is accepted.
type TriggerResponse struct {
	Status string `json:"status"`
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.handleHealth)
	mux.HandleFunc("GET /runs", d.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", d.handleGetRun)
	mux.HandleFunc("POST /runs", d.handleTriggerRun)
	if d.metrics != nil {
		mux.Handle("GET /metrics", d.metrics)
	}
	if pub := d.Config().Publish; pub.Kind == config.PublishDirectory {
		mux.Handle("GET /site/", http.StripPrefix("/site/", http.FileServer(siteFS{target: pub.Target})))
	}
	if push := d.Config().Triggers.Push; push != nil {
		mux.Handle("POST "+push.Path, NewPushHandler(d.pushSettings, d.Trigger))
	}
	return chain(slog.Default(), d.errorAdapter)(mux)
}

func (d *Daemon) pushSettings() *config.PushTriggerConfig {
	return d.Config().Triggers.Push
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   version.Resolved(),
		InFlight:  d.InFlight(),
		Schedules: d.Schedules(),
	}
	if !d.startTime.IsZero() {
		resp.Uptime = time.Since(d.startTime).Truncate(time.Second).String()
	}
	if d.history != nil {
		stats, err := d.history.Stats(r.Context())
		if err != nil {
			slog.Warn("Run history unavailable", logfields.Error(err))
			resp.Status = "degraded"
		} else {
			resp.History = stats
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (d *Daemon) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if d.history == nil {
		d.errorAdapter.WriteErrorResponse(w, r, errors.DaemonError("run history is not configured").Build())
		return
	}
	q := r.URL.Query()
	opts := runstore.ListOptions{
		Status:  pipeline.RunStatus(q.Get("status")),
		Trigger: pipeline.TriggerKind(q.Get("trigger")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			d.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("limit must be a positive integer").
				WithContext("limit", raw).
				Build())
			return
		}
		opts.Limit = n
	}
	runs, err := d.history.List(r.Context(), opts)
	if err != nil {
		d.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if runs == nil {
		runs = []*pipeline.Run{}
	}
	writeJSON(w, r, http.StatusOK, runs)
}

func (d *Daemon) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if d.history == nil {
		d.errorAdapter.WriteErrorResponse(w, r, errors.DaemonError("run history is not configured").Build())
		return
	}
	run, err := d.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		d.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// handleTriggerRun starts a manual run. With ?wait=true the response is
// the finished run record; otherwise the run starts in the background.
func (d *Daemon) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	trigger := pipeline.Trigger{Kind: pipeline.TriggerManual, Source: "api " + r.RemoteAddr}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		run, err := d.RunNow(trigger)
		if run == nil {
			d.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, run)
		return
	}
	if !d.Trigger(trigger) {
		d.errorAdapter.WriteErrorResponse(w, r, errors.DaemonError("daemon is shutting down").Build())
		return
	}
	writeJSON(w, r, http.StatusAccepted, TriggerResponse{Status: "accepted"})
}

// writeJSON encodes v, indenting when ?pretty=1 is set.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	var (
		b   []byte
		err error
	)
	if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		slog.Error("Failed to encode JSON response", logfields.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(b, '\n')); err != nil {
		slog.Debug("Failed writing JSON response", logfields.Error(err))
	}
}

// siteFS serves a directory publication. Between the two renames of a swap
// the target is absent and the outgoing tree sits at the previous path.
type siteFS struct {
	target string
}

func (s siteFS) Open(name string) (http.File, error) {
	f, err := http.Dir(s.target).Open(name)
	if err == nil || !os.IsNotExist(err) {
		return f, err
	}
	if _, statErr := os.Stat(s.target); statErr == nil {
		return nil, err
	}
	if f, perr := http.Dir(s.target + publish.PreviousSuffix).Open(name); perr == nil {
		return f, nil
	}
	// The swap may have completed meanwhile.
	return http.Dir(s.target).Open(name)
}
