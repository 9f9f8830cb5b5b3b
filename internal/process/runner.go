package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// Command describes one external process invocation.
type Command struct {
	// Args is the program followed by its arguments.
	Args []string
	// Dir is the working directory.
	Dir string
	// Env is added on top of the inherited process environment.
	Env map[string]string
	// Timeout bounds the run; zero means only the caller's context applies.
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Result holds the outcome of a process that was started.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Success reports a zero exit code.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Output returns the trailing lines of stderr, falling back to stdout.
func (r *Result) Output(maxLines int) string {
	if r == nil {
		return ""
	}
	out := r.Stderr
	if len(bytes.TrimSpace(out)) == 0 {
		out = r.Stdout
	}
	return tailLines(string(out), maxLines)
}

// ErrCancelled is returned when the context ended before the process exited.
var ErrCancelled = errors.New("process cancelled")

// Runner starts commands. The zero value is ready to use.
type Runner struct{}

// NewRunner returns a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run starts the command and waits for it. A non-zero exit is reported in
// Result.ExitCode with a nil error; errors mean the process could not be
// started or was cancelled.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	if len(c.Args) == 0 || c.Args[0] == "" {
		return nil, fmt.Errorf("empty command")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// #nosec G204 -- commands come from the operator's configuration
	cmd := exec.Command(c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	slog.Debug("Starting process", logfields.Command(c.String()), logfields.Path(c.Dir))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Args[0], err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("%w: %s: %w", ErrCancelled, c.Args[0], ctx.Err())
	case err = <-done:
	}

	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", c.Args[0], err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	slog.Debug("Process finished",
		logfields.Command(c.String()),
		logfields.ExitCode(res.ExitCode),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

// mergeEnv overlays extra on base; keys in extra win.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[key]; overridden {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if n <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
