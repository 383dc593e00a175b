//go:build !windows

package cmd

import (
	"os/exec"
	"syscall"
)

// detach sets the child into its own session so it survives this process
// exiting and isn't killed by the parent's terminal hangup.
func detach(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
