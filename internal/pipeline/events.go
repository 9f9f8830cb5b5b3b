package pipeline

// Event is a run lifecycle event published on the Bus.
type Event interface{ Name() string }

// Event names published by a Job.
const (
	EventRunStarted   = "RunStarted"
	EventStepFinished = "StepFinished"
	EventRunFinished  = "RunFinished"
)

// RunStarted is published once the run record exists.
type RunStarted struct{ Run *Run }

func (RunStarted) Name() string { return EventRunStarted }

// StepFinished is published after every executed step.
type StepFinished struct {
	RunID  string
	Result StepResult
}

func (StepFinished) Name() string { return EventStepFinished }

// RunFinished carries the final run record.
type RunFinished struct{ Run *Run }

func (RunFinished) Name() string { return EventRunFinished }
