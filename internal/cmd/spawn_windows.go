//go:build windows

package cmd

import "os/exec"

// detach is a no-op on Windows: exec.Cmd does not inherit console control
// events to child processes by default, which is enough isolation here.
func detach(c *exec.Cmd) {}
