package daemon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

const scheduleTag = "schedule"

// ScheduleInfo describes one registered cron entry.
type ScheduleInfo struct {
	Expression string     `json:"expression"`
	NextRun    *time.Time `json:"next_run,omitempty"`
}

// Scheduler wraps gocron scheduler for the configured cron triggers.
type Scheduler struct {
	scheduler gocron.Scheduler
	mu        sync.Mutex
	jobs      []gocron.Job
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(opts ...gocron.SchedulerOption) (*Scheduler, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler", slog.Int("schedules", len(s.Schedules())))
	s.scheduler.Start()
}

// Stop shuts the scheduler down. Tasks already running are not interrupted.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleCron registers fn under a five-field cron expression and returns the job ID.
func (s *Scheduler) ScheduleCron(expr string, fn func()) (string, error) {
	job, err := s.newCronJob(expr, fn)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	return job.ID().String(), nil
}

func (s *Scheduler) newCronJob(expr string, fn func()) (gocron.Job, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(fn),
		gocron.WithName(expr),
		gocron.WithTags(scheduleTag),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return job, nil
}

// Replace swaps every registered schedule for exprs. fn receives the
// expression that fired. Either all new schedules are installed or, on
// error, the previous set is left untouched.
func (s *Scheduler) Replace(exprs []string, fn func(expr string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]gocron.Job, 0, len(exprs))
	for _, expr := range exprs {
		job, err := s.newCronJob(expr, func() { fn(expr) })
		if err != nil {
			for _, j := range fresh {
				_ = s.scheduler.RemoveJob(j.ID())
			}
			return err
		}
		fresh = append(fresh, job)
	}

	for _, j := range s.jobs {
		if err := s.scheduler.RemoveJob(j.ID()); err != nil {
			slog.Warn("Failed to remove schedule", logfields.Schedule(j.Name()), logfields.Error(err))
		}
	}
	s.jobs = fresh
	for _, j := range fresh {
		slog.Info("Schedule registered", logfields.Schedule(j.Name()))
	}
	return nil
}

// Schedules lists the registered cron entries with their next run time.
func (s *Scheduler) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduleInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := ScheduleInfo{Expression: j.Name()}
		if next, err := j.NextRun(); err == nil && !next.IsZero() {
			info.NextRun = &next
		}
		out = append(out, info)
	}
	return out
}

