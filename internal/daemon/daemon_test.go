package daemon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
)

type fakeRunner struct {
	mu       sync.Mutex
	triggers []pipeline.Trigger
	block    chan struct{}
	seq      atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, t pipeline.Trigger) (*pipeline.Run, error) {
	f.mu.Lock()
	f.triggers = append(f.triggers, t)
	f.mu.Unlock()

	run := &pipeline.Run{ID: fmt.Sprintf("run-%d", f.seq.Add(1)), Trigger: t, Status: pipeline.RunSucceeded}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			run.Status = pipeline.RunFailed
			return run, ctx.Err()
		}
	}
	return run, nil
}

func (f *fakeRunner) seen() []pipeline.Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Trigger(nil), f.triggers...)
}

const baseConfig = `
repository:
  url: https://example.com/site.git
generator:
  command: ["python3", "update_html.py"]
daemon:
  addr: 127.0.0.1:0
`

func parseConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(baseConfig + extra))
	require.NoError(t, err)
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config, runner Runner, opts ...Option) *Daemon {
	t.Helper()
	d, err := New(cfg, func(*config.Config) (Runner, error) { return runner, nil }, opts...)
	require.NoError(t, err)
	return d
}

func TestDaemon_TriggerRunsInBackground(t *testing.T) {
	runner := &fakeRunner{}
	d := newTestDaemon(t, parseConfig(t, ""), runner)
	require.NoError(t, d.Start(t.Context()))

	require.True(t, d.Trigger(pipeline.Trigger{Kind: pipeline.TriggerManual}))
	require.True(t, d.Trigger(pipeline.Trigger{Kind: pipeline.TriggerManual}))

	require.NoError(t, d.Stop(context.Background()))
	assert.Len(t, runner.seen(), 2)
}

func TestDaemon_StopWaitsForInFlightRuns(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	d := newTestDaemon(t, parseConfig(t, ""), runner)
	require.NoError(t, d.Start(t.Context()))

	require.True(t, d.Trigger(pipeline.Trigger{Kind: pipeline.TriggerManual}))
	require.Eventually(t, func() bool { return d.InFlight() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- d.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.block)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
}

func TestDaemon_StopCancelsRunsAtDeadline(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	d := newTestDaemon(t, parseConfig(t, ""), runner)
	require.NoError(t, d.Start(t.Context()))

	require.True(t, d.Trigger(pipeline.Trigger{Kind: pipeline.TriggerManual}))
	require.Eventually(t, func() bool { return d.InFlight() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Zero(t, d.InFlight())
}

func TestDaemon_RejectsTriggersAfterStop(t *testing.T) {
	runner := &fakeRunner{}
	d := newTestDaemon(t, parseConfig(t, ""), runner)
	require.NoError(t, d.Start(t.Context()))
	require.NoError(t, d.Stop(context.Background()))

	assert.False(t, d.Trigger(pipeline.Trigger{Kind: pipeline.TriggerManual}))
	_, err := d.RunNow(pipeline.Trigger{Kind: pipeline.TriggerManual})
	require.Error(t, err)
	assert.Empty(t, runner.seen())
}

func TestDaemon_RegistersSchedules(t *testing.T) {
	cfg := parseConfig(t, `
triggers:
  schedules: ["*/15 * * * *", "7,22,37,52 * * * *"]
`)
	d := newTestDaemon(t, cfg, &fakeRunner{})
	require.NoError(t, d.Start(t.Context()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	got := d.Schedules()
	require.Len(t, got, 2)
	assert.Equal(t, "*/15 * * * *", got[0].Expression)
	assert.Equal(t, "7,22,37,52 * * * *", got[1].Expression)
	require.Eventually(t, func() bool {
		next := d.Schedules()[0].NextRun
		return next != nil && next.After(time.Now())
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDaemon_ScheduledTriggerStartsRun(t *testing.T) {
	runner := &fakeRunner{}
	d := newTestDaemon(t, parseConfig(t, ""), runner)
	require.NoError(t, d.Start(t.Context()))

	d.scheduledTrigger("*/15 * * * *")
	require.NoError(t, d.Stop(context.Background()))

	seen := runner.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, pipeline.TriggerSchedule, seen[0].Kind)
	assert.Equal(t, "*/15 * * * *", seen[0].Source)
	assert.Empty(t, seen[0].Revision)
}

func TestDaemon_ReloadConfig(t *testing.T) {
	first, second := &fakeRunner{}, &fakeRunner{}
	calls := 0
	factory := func(*config.Config) (Runner, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return second, nil
	}
	d, err := New(parseConfig(t, `
triggers:
  schedules: ["0 * * * *"]
`), factory)
	require.NoError(t, err)
	require.NoError(t, d.Start(t.Context()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	next := parseConfig(t, `
triggers:
  schedules: ["*/5 * * * *", "30 6 * * *"]
`)
	require.NoError(t, d.ReloadConfig(next))
	assert.Same(t, next, d.Config())

	exprs := []string{}
	for _, s := range d.Schedules() {
		exprs = append(exprs, s.Expression)
	}
	assert.Equal(t, []string{"*/5 * * * *", "30 6 * * *"}, exprs)

	_, err = d.RunNow(pipeline.Trigger{Kind: pipeline.TriggerManual})
	require.NoError(t, err)
	assert.Empty(t, first.seen())
	assert.Len(t, second.seen(), 1)
}

func TestDaemon_InFlightSurvivesReload(t *testing.T) {
	first := &fakeRunner{block: make(chan struct{})}
	second := &fakeRunner{block: make(chan struct{})}
	runners := []*fakeRunner{first, second}
	calls := 0
	factory := func(*config.Config) (Runner, error) {
		r := runners[calls]
		calls++
		return r, nil
	}
	d, err := New(parseConfig(t, ""), factory)
	require.NoError(t, err)
	require.NoError(t, d.Start(t.Context()))

	require.True(t, d.Trigger(pipeline.Trigger{Kind: pipeline.TriggerManual}))
	require.Eventually(t, func() bool { return d.InFlight() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, d.ReloadConfig(parseConfig(t, "")))
	assert.Equal(t, 1, d.InFlight(), "run on the replaced runner still counts")

	require.True(t, d.Trigger(pipeline.Trigger{Kind: pipeline.TriggerManual}))
	require.Eventually(t, func() bool { return d.InFlight() == 2 }, 2*time.Second, 10*time.Millisecond)

	close(first.block)
	require.Eventually(t, func() bool { return d.InFlight() == 1 }, 2*time.Second, 10*time.Millisecond)
	close(second.block)
	require.NoError(t, d.Stop(context.Background()))
	assert.Zero(t, d.InFlight())
}

func TestDaemon_ReloadFailureKeepsRunningConfig(t *testing.T) {
	runner := &fakeRunner{}
	calls := 0
	factory := func(*config.Config) (Runner, error) {
		calls++
		if calls > 1 {
			return nil, fmt.Errorf("bad credentials")
		}
		return runner, nil
	}
	cfg := parseConfig(t, `
triggers:
  schedules: ["0 * * * *"]
`)
	d, err := New(cfg, factory)
	require.NoError(t, err)
	require.NoError(t, d.Start(t.Context()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	require.Error(t, d.ReloadConfig(parseConfig(t, "")))
	assert.Same(t, cfg, d.Config())
	require.Len(t, d.Schedules(), 1)
}

func TestNew_FactoryError(t *testing.T) {
	_, err := New(parseConfig(t, ""), func(*config.Config) (Runner, error) {
		return nil, fmt.Errorf("no auth")
	})
	require.Error(t, err)
}
