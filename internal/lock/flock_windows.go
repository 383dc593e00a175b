//go:build windows

package lock

import "os"

// FlockAcquire creates the lock file but provides no real exclusion on
// Windows, which has no flock(2) equivalent wired up here; the supervisor
// startup guard degrades to "best effort" on this platform.
func FlockAcquire(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644) //nolint:gosec // G304,G306: lock files are internal operational data
	if err != nil {
		return nil, err
	}
	return func() { f.Close() }, nil
}

// FlockTryAcquire always succeeds on Windows; see FlockAcquire.
func FlockTryAcquire(path string) (func(), bool, error) {
	cleanup, err := FlockAcquire(path)
	if err != nil {
		return nil, false, err
	}
	return cleanup, true, nil
}
