//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in its own process group so that a
// timeout also kills whatever it spawned (git remote helpers, compose plugins).
func configureProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
}
