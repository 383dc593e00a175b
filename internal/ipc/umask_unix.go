//go:build !windows

package ipc

import "golang.org/x/sys/unix"

// tightenUmask sets umask 0077 for the duration of socket creation so the
// resulting file is born 0600 with no window where another local user could
// race to open it, per spec.md §4.7. The returned func restores the prior
// umask.
func tightenUmask() func() {
	old := unix.Umask(0o077)
	return func() { unix.Umask(old) }
}
