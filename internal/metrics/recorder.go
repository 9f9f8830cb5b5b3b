package metrics

import "time"

// ResultLabel enumerates step result categories for counters.
type ResultLabel string

const (
	ResultOK      ResultLabel = "ok"
	ResultSkipped ResultLabel = "skipped"
	ResultFailed  ResultLabel = "failed"
)

// RunOutcomeLabel enumerates final run outcomes.
type RunOutcomeLabel string

const (
	RunSucceeded RunOutcomeLabel = "succeeded"
	RunFailed    RunOutcomeLabel = "failed"
)

// Recorder defines observability hooks for job runs and their steps.
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStepResult(step string, result ResultLabel)
	IncRunOutcome(trigger string, outcome RunOutcomeLabel)
	IncCommit()
	IncPublication(changed bool)
	// AddRunsInFlight moves the in-flight gauge by delta. Jobs rebuilt on
	// config reload share one recorder, so the gauge spans all of them.
	AddRunsInFlight(delta int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)          {}
func (NoopRecorder) IncStepResult(string, ResultLabel)         {}
func (NoopRecorder) IncRunOutcome(string, RunOutcomeLabel)     {}
func (NoopRecorder) IncCommit()                                {}
func (NoopRecorder) IncPublication(bool)                       {}
func (NoopRecorder) AddRunsInFlight(int)                       {}
