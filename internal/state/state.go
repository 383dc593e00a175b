// Package state owns the in-memory process table and its atomic on-disk
// persistence, mirroring the teacher's own State/SaveState pattern
// (internal/daemon/daemon.go) but generalized from one supervisor-wide
// struct to a full per-daemon record keyed by qualified id.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"go.jdx.dev/pitchfork/internal/daemonid"
)

// Status is the closed set of daemon lifecycle states.
type Status string

const (
	StatusRunning  Status = "running"
	StatusWaiting  Status = "waiting"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusErrored  Status = "errored"
	StatusFailed   Status = "failed"
)

// Daemon is the persisted record for a single supervised daemon.
type Daemon struct {
	ID       string `json:"id"`
	PID      int    `json:"pid,omitempty"`
	Status   Status `json:"status"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Message  string `json:"message,omitempty"`

	Dir      string   `json:"dir"`
	Cmd      []string `json:"cmd"`
	ShellPID int      `json:"shell_pid,omitempty"`
	Autostop bool     `json:"autostop"`

	CronSchedule      string    `json:"cron_schedule,omitempty"`
	CronRetrigger     string    `json:"cron_retrigger,omitempty"`
	LastCronTriggered time.Time `json:"last_cron_triggered,omitempty"`

	LastExitSuccess bool `json:"last_exit_success"`

	Retry      uint32 `json:"retry"`
	RetryCount uint32 `json:"retry_count"`

	ReadyDelay  uint64 `json:"ready_delay,omitempty"`
	ReadyOutput string `json:"ready_output,omitempty"`
	ReadyHTTP   string `json:"ready_http,omitempty"`
	ReadyPort   uint16 `json:"ready_port,omitempty"`
	ReadyCmd    string `json:"ready_cmd,omitempty"`

	OriginalPort     uint16 `json:"original_port,omitempty"`
	Port             uint16 `json:"port,omitempty"`
	AutoBumpPort     bool   `json:"auto_bump_port,omitempty"`
	PortBumpAttempts uint32 `json:"port_bump_attempts,omitempty"`

	Depends []string          `json:"depends,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	Watch        []string `json:"watch,omitempty"`
	WatchBaseDir string   `json:"watch_base_dir,omitempty"`
}

// RetryInfinite is the saturating "infinite retries" sentinel. retry_count
// comparisons against it must use saturating arithmetic so the invariant
// retry_count <= retry never overflows past it.
const RetryInfinite uint32 = ^uint32(0)

// RetriesRemaining reports whether another retry attempt is permitted.
func (d *Daemon) RetriesRemaining() bool {
	if d.Retry == RetryInfinite {
		return true
	}
	return d.RetryCount < d.Retry
}

// IsRunning reports whether the record believes its process is live. It does
// not itself check the kernel; callers reconcile with procutil.
func (d *Daemon) IsRunning() bool {
	return d.Status == StatusRunning && d.PID != 0
}

// File is the on-disk document: daemons, disabled set, shell-dir map.
type File struct {
	Daemons   map[string]*Daemon `json:"daemons"`
	Disabled  map[string]bool    `json:"disabled"`
	ShellDirs map[string]string  `json:"shell_dirs"`
}

func newFile() *File {
	return &File{
		Daemons:   make(map[string]*Daemon),
		Disabled:  make(map[string]bool),
		ShellDirs: make(map[string]string),
	}
}

// Table is the mutex-guarded in-memory process table, backed by an
// atomically-rewritten state file under path. All mutation flows through
// Upsert, matching the teacher's single upsert-entry-point convention
// described in the design's "cyclic references" note.
type Table struct {
	path string

	mu   sync.Mutex
	file *File
}

// Open loads the state file at path, migrating legacy unqualified keys into
// daemonid.LegacyNamespace and rewriting the file immediately when it does.
func Open(path string) (*Table, error) {
	t := &Table{path: path, file: newFile()}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	if f.Daemons == nil {
		f.Daemons = make(map[string]*Daemon)
	}
	if f.Disabled == nil {
		f.Disabled = make(map[string]bool)
	}
	if f.ShellDirs == nil {
		f.ShellDirs = make(map[string]string)
	}
	migrated := migrateLegacy(&f)
	t.file = &f
	if migrated {
		if err := t.persistLocked(); err != nil {
			return nil, fmt.Errorf("rewriting migrated state file: %w", err)
		}
	}
	return t, nil
}

// migrateLegacy rewrites any key lacking "/" into the legacy namespace.
// Reports whether any key was migrated.
func migrateLegacy(f *File) bool {
	migrated := false
	for key, d := range f.Daemons {
		id, err := daemonid.Parse(key)
		if err != nil {
			continue
		}
		qualified := id.Qualified()
		if qualified != key {
			delete(f.Daemons, key)
			d.ID = qualified
			f.Daemons[qualified] = d
			migrated = true
		}
	}
	for key := range f.Disabled {
		id, err := daemonid.Parse(key)
		if err != nil {
			continue
		}
		qualified := id.Qualified()
		if qualified != key {
			delete(f.Disabled, key)
			f.Disabled[qualified] = true
			migrated = true
		}
	}
	return migrated
}

// persistLocked atomically rewrites the state file. Caller must hold mu.
// Uses an advisory flock over a sibling lock file plus write-to-temp-then-
// rename, so a reader never observes a partially written document.
func (t *Table) persistLocked() error {
	if t.path == "" {
		return nil
	}
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	lockPath := t.path + ".lock"
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring state file lock: %w", err)
	}
	defer fl.Unlock() //nolint:errcheck

	data, err := json.MarshalIndent(t.file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state file: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("renaming state file into place: %w", err)
	}
	return nil
}

// Upsert applies fn to the record for id (creating a zero-value record if
// absent), persists the file, and returns the resulting record. This is the
// single write path every other component routes mutations through.
func (t *Table) Upsert(id daemonid.ID, fn func(*Daemon)) (*Daemon, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := id.Qualified()
	d, ok := t.file.Daemons[key]
	if !ok {
		d = &Daemon{ID: key}
		t.file.Daemons[key] = d
	}
	fn(d)
	if err := t.persistLocked(); err != nil {
		return nil, err
	}
	clone := *d
	return &clone, nil
}

// Get returns a clone of the record for id, or (nil, false) if absent.
// Clones, rather than the live pointer, are returned so callers never hold
// the table's mutex across an await/blocking call.
func (t *Table) Get(id daemonid.ID) (*Daemon, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.file.Daemons[id.Qualified()]
	if !ok {
		return nil, false
	}
	clone := *d
	return &clone, true
}

// All returns clones of every daemon record, in no particular order.
func (t *Table) All() []*Daemon {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Daemon, 0, len(t.file.Daemons))
	for _, d := range t.file.Daemons {
		clone := *d
		out = append(out, &clone)
	}
	return out
}

// Delete removes the record for id entirely (used by Clean).
func (t *Table) Delete(id daemonid.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.file.Daemons, id.Qualified())
	return t.persistLocked()
}

// Clean removes every record whose PID is absent (not running), returning
// the ids removed.
func (t *Table) Clean() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []string
	for key, d := range t.file.Daemons {
		if d.PID == 0 {
			delete(t.file.Daemons, key)
			removed = append(removed, key)
		}
	}
	if err := t.persistLocked(); err != nil {
		return nil, err
	}
	return removed, nil
}

// SetDisabled mutates the disabled set for id, returning whether the call
// changed anything (Enable/Enable idempotence per the spec's round-trip
// laws).
func (t *Table) SetDisabled(id daemonid.ID, disabled bool) (changed bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := id.Qualified()
	was := t.file.Disabled[key]
	if was == disabled {
		return false, nil
	}
	if disabled {
		t.file.Disabled[key] = true
	} else {
		delete(t.file.Disabled, key)
	}
	if err := t.persistLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// IsDisabled reports whether id is in the disabled set.
func (t *Table) IsDisabled(id daemonid.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Disabled[id.Qualified()]
}

// DisabledIDs returns every disabled qualified id.
func (t *Table) DisabledIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.file.Disabled))
	for k := range t.file.Disabled {
		out = append(out, k)
	}
	return out
}

// SetShellDir records the current directory for a shell PID.
func (t *Table) SetShellDir(shellPID int, dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file.ShellDirs[fmt.Sprint(shellPID)] = dir
	return t.persistLocked()
}

// ShellDir returns the last known directory for shellPID.
func (t *Table) ShellDir(shellPID int) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir, ok := t.file.ShellDirs[fmt.Sprint(shellPID)]
	return dir, ok
}

// ShellDirs returns a snapshot of the whole shell PID -> directory map.
func (t *Table) ShellDirs() map[int]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]string, len(t.file.ShellDirs))
	for k, v := range t.file.ShellDirs {
		var pid int
		if _, err := fmt.Sscanf(k, "%d", &pid); err == nil {
			out[pid] = v
		}
	}
	return out
}

// RemoveShellPID drops a dead shell's directory entry (reaped on refresh).
func (t *Table) RemoveShellPID(shellPID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := fmt.Sprint(shellPID)
	if _, ok := t.file.ShellDirs[key]; !ok {
		return nil
	}
	delete(t.file.ShellDirs, key)
	return t.persistLocked()
}
