//go:build !unix

package runner

import "os/exec"

func configureProcessGroup(c *exec.Cmd) {}
