package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagerefresh"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once         sync.Once
	reg          *prom.Registry
	stepDuration *prom.HistogramVec
	runDuration  prom.Histogram
	stepResults  *prom.CounterVec
	runOutcomes  *prom.CounterVec
	commits      prom.Counter
	publications *prom.CounterVec
	inFlight     prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual job steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total job run duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Job runs by trigger and final status",
		}, []string{"trigger", "outcome"})
		pr.commits = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commits pushed because the target file changed",
		})
		pr.publications = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publications_total",
			Help:      "Publications by whether the published tree changed",
		}, []string{"changed"})
		pr.inFlight = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Job runs currently executing",
		})
		reg.MustRegister(pr.stepDuration, pr.runDuration, pr.stepResults, pr.runOutcomes, pr.commits, pr.publications, pr.inFlight)
	})
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, result ResultLabel) {
	if p == nil || p.stepResults == nil {
		return
	}
	p.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(trigger string, outcome RunOutcomeLabel) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(trigger, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncCommit() {
	if p == nil || p.commits == nil {
		return
	}
	p.commits.Inc()
}

func (p *PrometheusRecorder) IncPublication(changed bool) {
	if p == nil || p.publications == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	p.publications.WithLabelValues(label).Inc()
}

func (p *PrometheusRecorder) AddRunsInFlight(delta int) {
	if p == nil || p.inFlight == nil {
		return
	}
	p.inFlight.Add(float64(delta))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
