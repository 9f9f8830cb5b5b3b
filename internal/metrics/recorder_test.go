package metrics

import (
	"testing"
	"time"
)

func TestNoopRecorderImplementsRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStepDuration("checkout", time.Second)
	r.ObserveRunDuration(time.Second)
	r.IncStepResult("checkout", ResultOK)
	r.IncRunOutcome("push", RunFailed)
	r.IncCommit()
	r.IncPublication(true)
	r.AddRunsInFlight(1)
	r.AddRunsInFlight(-1)
}

var _ Recorder = (*PrometheusRecorder)(nil)
