// Package notify announces finished runs on a NATS subject.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
)

// Conn is the subset of *nats.Conn the notifier uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Summary is the JSON message published for every finished run.
type Summary struct {
	RunID           string             `json:"run_id"`
	Trigger         pipeline.Trigger   `json:"trigger"`
	Status          pipeline.RunStatus `json:"status"`
	Committed       bool               `json:"committed"`
	CommitHash      string             `json:"commit_hash,omitempty"`
	Published       bool               `json:"published"`
	PublishLocation string             `json:"publish_location,omitempty"`
	FailedStep      pipeline.StepName  `json:"failed_step,omitempty"`
	Error           string             `json:"error,omitempty"`
	ErrorCategory   string             `json:"error_category,omitempty"`
	DurationMS      int64              `json:"duration_ms"`
	FinishedAt      time.Time          `json:"finished_at"`
}

// SummaryOf builds the notification payload for run.
func SummaryOf(run *pipeline.Run) Summary {
	return Summary{
		RunID:           run.ID,
		Trigger:         run.Trigger,
		Status:          run.Status,
		Committed:       run.Committed,
		CommitHash:      run.CommitHash,
		Published:       run.Published,
		PublishLocation: run.PublishLocation,
		FailedStep:      run.FailedStep,
		Error:           run.Error,
		ErrorCategory:   run.ErrorCategory,
		DurationMS:      run.Duration().Milliseconds(),
		FinishedAt:      run.FinishedAt,
	}
}

// Notifier publishes run summaries.
type Notifier struct {
	conn    Conn
	subject string
	flush   time.Duration
}

// New wraps an existing connection.
func New(conn Conn, subject string) *Notifier {
	if subject == "" {
		subject = config.DefaultNotifySubject
	}
	return &Notifier{conn: conn, subject: subject, flush: 2 * time.Second}
}

// Connect dials the configured NATS server.
func Connect(cfg *config.NotifyConfig) (*Notifier, error) {
	if cfg == nil {
		return nil, errors.ConfigError("notify configuration is required").Build()
	}
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("pagerefresh"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).
			Build()
	}
	slog.Info("NATS notifier connected", slog.String("url", cfg.NATSURL), slog.String("subject", cfg.Subject))
	return New(conn, cfg.Subject), nil
}

// Subject returns the subject summaries are published on.
func (n *Notifier) Subject() string { return n.subject }

// Notify publishes the summary of run and waits for the server to receive it.
func (n *Notifier) Notify(run *pipeline.Run) error {
	data, err := json.Marshal(SummaryOf(run))
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to publish run summary").
			WithContext("subject", n.subject).
			WithContext("run_id", run.ID).
			Build()
	}
	if err := n.conn.FlushTimeout(n.flush); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to flush run summary").
			WithContext("subject", n.subject).
			Build()
	}
	slog.Debug("Published run summary", logfields.RunID(run.ID), slog.String("subject", n.subject))
	return nil
}

// Handler returns a bus handler notifying on every finished run.
func (n *Notifier) Handler() pipeline.Handler {
	return func(e pipeline.Event) error {
		rf, ok := e.(pipeline.RunFinished)
		if !ok {
			return nil
		}
		return n.Notify(rf.Run)
	}
}

// Close closes the connection.
func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
