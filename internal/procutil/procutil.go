// Package procutil provides PID liveness checks, descendant process
// enumeration, CPU/RSS sampling, and signalled termination. The liveness
// fast-path mirrors the teacher's own syscall.Signal(0) check
// (internal/daemon/daemon.go's IsRunning), while descendant enumeration and
// resource sampling are layered on top with
// github.com/shirou/gopsutil/v4/process, grounded on the pack's
// process-manager manifests (loykin-provisr, gophpeek-phpeek-pm) which both
// depend on gopsutil for exactly this.
package procutil

import (
	"fmt"
	"os"
	"syscall"
	"time"

	gopsutil "github.com/shirou/gopsutil/v4/process"
)

// Alive reports whether pid refers to a live process, by sending signal 0.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Sample is a point-in-time resource reading for a process.
type Sample struct {
	PID        int32
	CPUPercent float64
	RSSBytes   uint64
}

// SampleProcess reads CPU percent and resident set size for pid. Errors are
// returned rather than swallowed so callers can decide whether a transient
// sampling failure (process exited mid-read) should be logged or ignored.
func SampleProcess(pid int) (Sample, error) {
	p, err := gopsutil.NewProcess(int32(pid))
	if err != nil {
		return Sample{}, fmt.Errorf("opening process %d: %w", pid, err)
	}
	cpuPct, err := p.CPUPercent()
	if err != nil {
		return Sample{}, fmt.Errorf("reading cpu percent for %d: %w", pid, err)
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("reading memory info for %d: %w", pid, err)
	}
	return Sample{PID: int32(pid), CPUPercent: cpuPct, RSSBytes: mem.RSS}, nil
}

// Descendants returns the PIDs of every live descendant of pid (children,
// grandchildren, ...), using gopsutil's process tree walk.
func Descendants(pid int) ([]int, error) {
	p, err := gopsutil.NewProcess(int32(pid))
	if err != nil {
		// Already gone: no descendants to report, not an error condition
		// the stop algorithm needs to react to.
		return nil, nil
	}
	children, err := p.Children()
	if err != nil {
		return nil, nil //nolint:nilerr // gopsutil returns an error for "no children"
	}
	var out []int
	for _, c := range children {
		out = append(out, int(c.Pid))
		grandchildren, err := Descendants(int(c.Pid))
		if err == nil {
			out = append(out, grandchildren...)
		}
	}
	return out, nil
}

// Signal sends sig to pid, treating "process already gone" as success.
func Signal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Signal(sig); err != nil {
		if !Alive(pid) {
			return nil
		}
		return fmt.Errorf("signalling pid %d: %w", pid, err)
	}
	return nil
}

// Terminate signals the given PIDs with SIGTERM, then polls for death for up
// to 10*50ms per spec.md §4.1, falling back to SIGKILL if nothing observable
// happened. Returns nil once the parent PID is confirmed dead, or an error
// describing that it survived.
func Terminate(parentPID int, descendants []int) error {
	for _, pid := range descendants {
		_ = Signal(pid, syscall.SIGTERM)
	}
	if err := Signal(parentPID, syscall.SIGTERM); err != nil {
		return err
	}

	const pollInterval = 50 * time.Millisecond
	const pollAttempts = 10
	for i := 0; i < pollAttempts; i++ {
		if !Alive(parentPID) {
			return nil
		}
		time.Sleep(pollInterval)
	}

	if !Alive(parentPID) {
		return nil
	}

	// Fall back to an unconditional kill.
	_ = Signal(parentPID, syscall.SIGKILL)
	for _, pid := range descendants {
		_ = Signal(pid, syscall.SIGKILL)
	}
	for i := 0; i < pollAttempts; i++ {
		if !Alive(parentPID) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	if Alive(parentPID) {
		return fmt.Errorf("process %d still alive after SIGTERM and SIGKILL", parentPID)
	}
	return nil
}
