package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rodrwan/hookd/internal/runner"
)

// ErrNotRepository is returned when the workspace holds files but no git checkout.
// Nothing is removed in that case; an operator has to clean the directory.
var ErrNotRepository = errors.New("workspace is not empty and is not a git repository")

// ErrInvalidRef is returned for tags git would read as an option.
var ErrInvalidRef = errors.New("invalid git ref")

// Synchronizer brings a workspace to a given ref of a remote repository using the git CLI.
type Synchronizer struct {
	runner runner.Runner
	binary string
}

func NewSynchronizer(r runner.Runner, binary string) *Synchronizer {
	if binary == "" {
		binary = "git"
	}
	return &Synchronizer{runner: r, binary: binary}
}

// Sync clones url into dir when there is no checkout yet, fetches the latest refs
// and checks out tag. When tag names a branch it is fast-forwarded to its upstream.
// Every step is its own git process and any non-zero exit stops the sync.
func (s *Synchronizer) Sync(ctx context.Context, log *logrus.Entry, dir, url, tag string) error {
	if strings.HasPrefix(tag, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidRef, tag)
	}

	cloned, err := isRepository(dir)
	if err != nil {
		return err
	}

	if !cloned {
		empty, err := isEmptyDir(dir)
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}

		log.Info("cloning repository")
		if err := s.run(ctx, log, "", "clone", "--", url, dir); err != nil {
			return err
		}
	}

	log.Info("fetching latest refs")
	if err := s.run(ctx, log, dir, "fetch", "--tags", "--force", "--prune", "origin"); err != nil {
		return err
	}

	log.WithField("tag", tag).Info("checking out ref")
	if err := s.run(ctx, log, dir, "checkout", "--force", tag); err != nil {
		return err
	}

	onBranch, err := s.onBranch(ctx, dir)
	if err != nil {
		return err
	}
	if onBranch {
		log.Info("fast-forwarding branch")
		if err := s.run(ctx, log, dir, "pull", "--ff-only"); err != nil {
			return err
		}
	}

	return nil
}

func (s *Synchronizer) command(dir string, args ...string) runner.Command {
	return runner.Command{
		Name: s.binary,
		Args: args,
		Dir:  dir,
		// Never wait on a credential prompt nobody can answer.
		Env: []string{"GIT_TERMINAL_PROMPT=0"},
	}
}

func (s *Synchronizer) run(ctx context.Context, log *logrus.Entry, dir string, args ...string) error {
	cmd := s.command(dir, args...)
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		if res != nil && res.Output != "" {
			log.WithField("command", cmd.Label()).Warnf("git output:\n%s", res.Output)
		}
		return err
	}

	log.WithFields(logrus.Fields{"command": cmd.Label(), "duration": res.Duration}).Debug("git step done")
	return nil
}

// onBranch reports whether HEAD points to a branch. Only the exit status of
// `git symbolic-ref -q HEAD` is used: 0 on a branch, 1 when detached.
func (s *Synchronizer) onBranch(ctx context.Context, dir string) (bool, error) {
	res, err := s.runner.Run(ctx, s.command(dir, "symbolic-ref", "-q", "HEAD"))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, runner.ErrExitStatus) && res != nil && res.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

func isRepository(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("error inspecting %s: %w", dir, err)
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, fmt.Errorf("error opening %s: %w", dir, err)
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading %s: %w", dir, err)
	}
	return false, nil
}
