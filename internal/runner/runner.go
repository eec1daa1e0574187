package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// outputLimit caps how much combined output is kept per command.
	outputLimit = 64 * 1024
	waitDelay   = 5 * time.Second
)

var (
	ErrExitStatus = errors.New("command exited with non-zero status")
	ErrTimeout    = errors.New("command timed out")
)

// Command is a single external process invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory, the current one when empty.
	Dir string
	// Env is added on top of the process environment, "KEY=value" per entry.
	Env []string
}

// Label names the command without its trailing arguments, which may carry
// remote URLs or refs. It is safe to put in logs and responses.
func (c Command) Label() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + c.Args[0]
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds what a finished command left behind.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as child processes, each bounded by a timeout.
type ExecRunner struct {
	timeout time.Duration
}

func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{timeout: timeout}
}

// Run starts cmd and waits for it. A non-zero exit yields ErrExitStatus, an expired
// timeout kills the process group and yields ErrTimeout. The Result is returned in
// both cases so callers can log the output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.WaitDelay = waitDelay
	configureProcessGroup(c)

	out := &tailBuffer{limit: outputLimit}
	c.Stdout = out
	c.Stderr = out

	logrus.Debugf("executing %s (dir %s)", cmd.Label(), cmd.Dir)
	start := time.Now()
	err := c.Run()
	result := &Result{
		ExitCode: c.ProcessState.ExitCode(),
		Output:   out.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		return result, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("%s: %w after %s", cmd.Label(), ErrTimeout, r.timeout)
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("%s: %w", cmd.Label(), ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, fmt.Errorf("%s: %w (exit code %d)", cmd.Label(), ErrExitStatus, result.ExitCode)
	}

	return result, fmt.Errorf("error running %s: %w", cmd.Label(), err)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
