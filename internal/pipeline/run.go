package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind identifies what started a run.
type TriggerKind string

const (
	TriggerSchedule TriggerKind = "schedule"
	TriggerPush     TriggerKind = "push"
	TriggerManual   TriggerKind = "manual"
)

// Trigger is the event that started a run.
type Trigger struct {
	Kind TriggerKind `json:"kind"`
	// Source names the schedule expression, webhook delivery or caller.
	Source string `json:"source,omitempty"`
	// Revision is the pushed head for push triggers; empty means branch tip.
	Revision string `json:"revision,omitempty"`
}

// StepName identifies a job step.
type StepName string

const (
	StepCheckout     StepName = "checkout"
	StepToolchain    StepName = "toolchain"
	StepDependencies StepName = "dependencies"
	StepGenerate     StepName = "generate"
	StepCommit       StepName = "commit"
	StepPublish      StepName = "publish"
)

// Steps lists the steps in execution order.
var Steps = []StepName{StepCheckout, StepToolchain, StepDependencies, StepGenerate, StepCommit, StepPublish}

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepResult records one executed step.
type StepResult struct {
	Name     StepName      `json:"name"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Note     string        `json:"note,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// RunStatus is the final state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the record of one job execution.
type Run struct {
	ID              string       `json:"id"`
	Trigger         Trigger      `json:"trigger"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at,omitempty"`
	Status          RunStatus    `json:"status"`
	Committed       bool         `json:"committed"`
	CommitHash      string       `json:"commit_hash,omitempty"`
	Published       bool         `json:"published"`
	PublishLocation string       `json:"publish_location,omitempty"`
	Steps           []StepResult `json:"steps"`
	FailedStep      StepName     `json:"failed_step,omitempty"`
	Error           string       `json:"error,omitempty"`
	ErrorCategory   string       `json:"error_category,omitempty"`
}

func newRun(trigger Trigger) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
		Steps:     make([]StepResult, 0, len(Steps)),
	}
}

// Step returns the recorded result for name, or nil if the step did not run.
func (r *Run) Step(name StepName) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Duration is the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports a run that finished without error.
func (r *Run) Succeeded() bool {
	return r.Status == RunSucceeded
}
