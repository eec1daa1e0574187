package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rodrwan/hookd/internal/runner"
)

// RunFunc decides the outcome of a recorded command.
type RunFunc func(cmd runner.Command) (*runner.Result, error)

// FakeRunner records every command instead of executing it.
type FakeRunner struct {
	mu       sync.Mutex
	commands []runner.Command
	handlers map[string]RunFunc
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{handlers: make(map[string]RunFunc)}
}

// On registers fn for commands whose String() starts with prefix. The longest matching prefix wins.
func (f *FakeRunner) On(prefix string, fn RunFunc) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[prefix] = fn
	return f
}

// FailOn makes commands starting with prefix exit with code 1.
func (f *FakeRunner) FailOn(prefix string) *FakeRunner {
	return f.On(prefix, func(cmd runner.Command) (*runner.Result, error) {
		return &runner.Result{ExitCode: 1, Output: "fake failure"},
			fmt.Errorf("%s: %w (exit code 1)", cmd.Label(), runner.ErrExitStatus)
	})
}

func (f *FakeRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	var (
		fn   RunFunc
		best int = -1
	)
	for prefix, h := range f.handlers {
		if strings.HasPrefix(cmd.String(), prefix) && len(prefix) > best {
			fn, best = h, len(prefix)
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(cmd)
	}
	return &runner.Result{}, nil
}

// Commands returns the recorded commands in order.
func (f *FakeRunner) Commands() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.commands...)
}

// Lines returns the recorded commands rendered as strings.
func (f *FakeRunner) Lines() []string {
	cmds := f.Commands()
	lines := make([]string, 0, len(cmds))
	for _, c := range cmds {
		lines = append(lines, c.String())
	}
	return lines
}
