// Package shellexec runs a command through "sh -c", fire-and-forget, with
// stdout/stderr discarded. It generalizes the teacher's hardcoded
// exec.Command("gt", "mail", "send", ...) fire-and-forget call
// (internal/daemon/daemon.go:840) to an arbitrary shell command string.
// Like internal/procutil's syscall.Signal(0) liveness check, this assumes
// a POSIX shell is present; pitchfork does not target Windows.
package shellexec

import (
	"context"
	"os/exec"
)

// Run executes cmd via "sh -c" in dir with env, discarding output, and
// returns once the process has exited (or failed to start).
func Run(ctx context.Context, cmd, dir string, env []string) error {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = dir
	c.Env = env
	c.Stdin = nil
	c.Stdout = nil
	c.Stderr = nil
	return c.Run()
}

// Fire runs cmd in the background, logging nothing itself; callers decide
// how to report the resulting error (spec.md §4.6: "a non-zero exit is
// logged as a warning" by the caller, not this package).
func Fire(cmd, dir string, env []string, onDone func(error)) {
	go func() {
		err := Run(context.Background(), cmd, dir, env)
		if onDone != nil {
			onDone(err)
		}
	}()
}
