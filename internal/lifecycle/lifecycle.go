// Package lifecycle implements the supervisor's spawn/monitor/stop state
// machine (component F). The shape — a shell-wrapper spawn plus a single
// multiplexing monitor goroutine per child — follows the teacher's own
// daemon spawn/monitor code in internal/daemon/lifecycle.go, generalized
// from one hardcoded town-level daemon to arbitrary user-declared daemons
// with readiness, retry, and port policies.
package lifecycle

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.jdx.dev/pitchfork/internal/config"
	"go.jdx.dev/pitchfork/internal/daemonid"
	"go.jdx.dev/pitchfork/internal/hooks"
	"go.jdx.dev/pitchfork/internal/logwriter"
	"go.jdx.dev/pitchfork/internal/portpolicy"
	"go.jdx.dev/pitchfork/internal/procutil"
	"go.jdx.dev/pitchfork/internal/readiness"
	"go.jdx.dev/pitchfork/internal/state"
)

// Outcome is what run/run_once reports back to the dispatcher.
type Outcome int

const (
	OutcomeStart Outcome = iota
	OutcomeReady
	OutcomeAlreadyRunning
	OutcomeFailedWithCode
	OutcomeStopFailed
)

// RunResult is the result of a run/run_once call.
type RunResult struct {
	Outcome  Outcome
	Record   *state.Daemon
	ExitCode *int
	Err      error
}

// StopResult is the result of a stop call.
type StopResult int

const (
	StopOK StopResult = iota
	StopNotFound
	StopNotRunning
	StopWasNotRunning
	StopFailed
)

// RunOptions describes a requested spawn, whether coming from an explicit
// CLI invocation or the scheduler's retry/cron/watch drivers.
type RunOptions struct {
	ID           daemonid.ID
	Cmd          []string
	Dir          string
	Env          map[string]string
	Force        bool
	WaitReady    bool
	Autostop     bool
	Retry        uint32
	ReadyDelay   time.Duration
	ReadyOutput  string
	ReadyHTTP    string
	ReadyPort    uint16
	ReadyCmd     string
	Port         uint16
	AutoBumpPort bool
	Depends      []string
	CronSchedule string
	CronRetrigger string
	Watch        []string
	Hooks        config.HooksConfig
	ShellPID     int
}

// LogRoot and OriginalEnv are supplied by the caller (supervisor wiring) so the
// engine stays decoupled from filesystem layout decisions.
type Engine struct {
	Table           *state.Table
	LogRoot         string
	PortBumpAttempts uint32
	OriginalEnv     []string // external-process-original PATH et al.

	mu      sync.Mutex
	writers map[string]*logwriter.Writer
	cancels map[string]context.CancelFunc
}

func New(table *state.Table, logRoot string, portBumpAttempts uint32, originalEnv []string) *Engine {
	return &Engine{
		Table:            table,
		LogRoot:          logRoot,
		PortBumpAttempts: portBumpAttempts,
		OriginalEnv:      originalEnv,
		writers:          make(map[string]*logwriter.Writer),
		cancels:          make(map[string]context.CancelFunc),
	}
}

// Run is the dispatcher-facing entry point: step 1 of the spawn algorithm
// (already-running / force check) plus the synchronous wait_ready loop with
// exponential backoff (spec.md §4.3: "Exponential backoff is applied only
// when retries are driven from within run").
func (e *Engine) Run(ctx context.Context, opts RunOptions) RunResult {
	existing, _ := e.Table.Get(opts.ID)
	if existing != nil && existing.IsRunning() {
		if !opts.Force {
			return RunResult{Outcome: OutcomeAlreadyRunning, Record: existing}
		}
		if res := e.Stop(opts.ID); res != StopOK && res != StopWasNotRunning {
			return RunResult{Outcome: OutcomeStopFailed, Record: existing}
		}
	}

	var attempt uint32
	for {
		res := e.runOnce(ctx, opts, attempt)
		if res.Outcome != OutcomeFailedWithCode {
			return res
		}
		if attempt >= opts.Retry {
			return res
		}
		attempt++
		e.Table.Upsert(opts.ID, func(d *state.Daemon) {
			d.RetryCount = attempt
		})
		hooks.Fire(hooks.KindRetry, res.Record, opts.Hooks, e.OriginalEnv)
		backoff := time.Duration(1<<attempt) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return res
		}
	}
}

// RunOnce is the entry point used by the background retry driver: it
// performs exactly one spawn attempt, reading (never incrementing) the
// retry_count the caller has already bumped, per the Open Question
// resolution in spec.md §9. The caller passes that count in opts.Retry as
// the attempt number; the record keeps its stored retry budget.
func (e *Engine) RunOnce(ctx context.Context, opts RunOptions) RunResult {
	attempt := opts.Retry // Retry field repurposed as "attempt" by callers that already incremented
	if rec, ok := e.Table.Get(opts.ID); ok {
		opts.Retry = rec.Retry
	}
	return e.runOnce(ctx, opts, attempt)
}

func (e *Engine) runOnce(ctx context.Context, opts RunOptions, attempt uint32) RunResult {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	dir = config.ExpandDir(dir)

	resolvedPort, err := portpolicy.Resolve(opts.Port, opts.AutoBumpPort, e.PortBumpAttempts)
	if err != nil {
		e.persistFailed(opts.ID, err.Error())
		return RunResult{Outcome: OutcomeFailedWithCode, Err: err}
	}

	readyPort := opts.ReadyPort
	if readyPort == 0 && resolvedPort != 0 {
		readyPort = resolvedPort
	}

	env := effectiveEnv(e.OriginalEnv, opts.Env, opts.ID, attempt, resolvedPort)

	joined := shellJoin(opts.Cmd)
	cmd := exec.CommandContext(ctx, "sh", "-c", "exec "+joined)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = nil

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		e.persistFailed(opts.ID, err.Error())
		return RunResult{Outcome: OutcomeFailedWithCode, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		e.persistFailed(opts.ID, err.Error())
		return RunResult{Outcome: OutcomeFailedWithCode, Err: err}
	}

	if err := cmd.Start(); err != nil {
		e.persistFailed(opts.ID, err.Error())
		return RunResult{Outcome: OutcomeFailedWithCode, Err: err}
	}

	rec, err := e.Table.Upsert(opts.ID, func(d *state.Daemon) {
		d.PID = cmd.Process.Pid
		d.Status = state.StatusRunning
		d.Cmd = opts.Cmd
		d.Dir = dir
		d.Env = opts.Env
		d.ShellPID = opts.ShellPID
		d.Autostop = opts.Autostop
		d.Retry = opts.Retry
		d.ReadyDelay = uint64(opts.ReadyDelay / time.Second)
		d.ReadyOutput = opts.ReadyOutput
		d.ReadyHTTP = opts.ReadyHTTP
		d.ReadyPort = readyPort
		d.ReadyCmd = opts.ReadyCmd
		d.OriginalPort = opts.Port
		d.Port = resolvedPort
		d.AutoBumpPort = opts.AutoBumpPort
		d.Depends = opts.Depends
		d.CronSchedule = opts.CronSchedule
		d.CronRetrigger = opts.CronRetrigger
		d.Watch = opts.Watch
		d.ExitCode = nil
		d.Message = ""
	})
	if err != nil {
		return RunResult{Outcome: OutcomeFailedWithCode, Err: err}
	}

	safePath := opts.ID.SafePath()
	writer, err := logwriter.Open(filepath.Join(e.LogRoot, safePath), safePath, opts.ID.Name)
	if err != nil {
		writer = nil
	}
	e.mu.Lock()
	if writer != nil {
		e.writers[rec.ID] = writer
	}
	e.mu.Unlock()

	monCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[rec.ID] = cancel
	e.mu.Unlock()

	exitCh := make(chan readiness.ExitInfo, 1)
	go e.monitor(monCtx, opts.ID, cmd, writer, exitCh)

	arbiter := readiness.New(readiness.Probes{
		Delay:       opts.ReadyDelay,
		OutputRegex: opts.ReadyOutput,
		HTTPURL:     opts.ReadyHTTP,
		TCPPort:     readyPort,
		Command:     opts.ReadyCmd,
		RunCommand:  readiness.RunShellCommand,
		WaitReady:   opts.WaitReady,
	})

	onLine := func(stream, line string) {
		if writer != nil {
			_ = writer.WriteLine(line)
		}
	}

	result := arbiter.Race(ctx, bufio.NewScanner(stdoutPipe), bufio.NewScanner(stderrPipe), exitCh, onLine)
	if writer != nil {
		writer.Flush()
	}

	switch result.Outcome {
	case readiness.Ready, readiness.Start:
		outcome := OutcomeStart
		if result.Outcome == readiness.Ready {
			outcome = OutcomeReady
		}
		hooks.Fire(hooks.KindReady, rec, opts.Hooks, e.OriginalEnv)
		return RunResult{Outcome: outcome, Record: rec}
	default:
		e.persistErrored(opts.ID, result.ExitCode)
		hooks.Fire(hooks.KindFail, rec, opts.Hooks, e.OriginalEnv)
		rec2, _ := e.Table.Get(opts.ID)
		return RunResult{Outcome: OutcomeFailedWithCode, Record: rec2, ExitCode: result.ExitCode}
	}
}

// monitor multiplexes a single child's output pump and exit wait, writing
// every emitted line to the per-daemon log and applying the three-way exit
// rule from spec.md §4.1.
func (e *Engine) monitor(ctx context.Context, id daemonid.ID, cmd *exec.Cmd, writer *logwriter.Writer, exitCh chan<- readiness.ExitInfo) {
	err := cmd.Wait()

	var code *int
	success := err == nil
	if exitErr, ok := err.(*exec.ExitError); ok {
		c := exitErr.ExitCode()
		code = &c
	} else if err != nil && code == nil {
		// Could not determine an exit code (signal, spawn-level failure).
	}

	rec, _ := e.Table.Get(id)
	wasStopping := rec != nil && rec.Status == state.StatusStopping

	e.Table.Upsert(id, func(d *state.Daemon) {
		d.PID = 0
		switch {
		case wasStopping:
			d.Status = state.StatusStopped
			d.LastExitSuccess = true
			d.ExitCode = nil
		case success:
			d.Status = state.StatusStopped
			d.LastExitSuccess = true
			d.ExitCode = nil
		default:
			d.Status = state.StatusErrored
			d.LastExitSuccess = false
			d.ExitCode = code
		}
	})

	if writer != nil {
		writer.Flush()
		_ = writer.Close()
	}
	e.mu.Lock()
	delete(e.writers, id.Qualified())
	delete(e.cancels, id.Qualified())
	e.mu.Unlock()

	select {
	case exitCh <- readiness.ExitInfo{Success: success || wasStopping, ExitCode: code}:
	default:
	}
}

// Stop implements the §4.1 stop algorithm: mark Stopping, signal descendants
// then the parent, poll for death, fall back to SIGKILL.
func (e *Engine) Stop(id daemonid.ID) StopResult {
	if id.IsSupervisor() {
		return StopNotFound
	}
	rec, ok := e.Table.Get(id)
	if !ok || rec == nil {
		return StopNotFound
	}
	if !rec.IsRunning() {
		return StopWasNotRunning
	}

	pid := rec.PID
	e.Table.Upsert(id, func(d *state.Daemon) {
		d.Status = state.StatusStopping
	})

	descendants, _ := procutil.Descendants(pid)
	if err := procutil.Terminate(pid, descendants); err != nil {
		e.Table.Upsert(id, func(d *state.Daemon) {
			d.Status = state.StatusRunning
		})
		return StopFailed
	}
	return StopOK
}

func (e *Engine) persistFailed(id daemonid.ID, msg string) {
	e.Table.Upsert(id, func(d *state.Daemon) {
		d.Status = state.StatusFailed
		d.Message = msg
		d.PID = 0
	})
}

func (e *Engine) persistErrored(id daemonid.ID, code *int) {
	e.Table.Upsert(id, func(d *state.Daemon) {
		d.Status = state.StatusErrored
		d.ExitCode = code
		d.LastExitSuccess = false
		d.PID = 0
	})
}

// shellJoin renders a tokenised command back into a single shell-safe
// string for the "sh -c \"exec <joined>\"" wrapper spec.md §4.1 specifies.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// effectiveEnv layers PATH/user-env/injected metadata per spec.md §4.1: the
// original external PATH first, then the daemon's declared env, then
// PITCHFORK_* metadata last so it always wins collisions.
func effectiveEnv(originalEnv []string, daemonEnv map[string]string, id daemonid.ID, attempt uint32, port uint16) []string {
	merged := make(map[string]string)
	for _, kv := range originalEnv {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			merged[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range daemonEnv {
		merged[k] = v
	}
	merged["PITCHFORK_DAEMON_ID"] = id.Name
	merged["PITCHFORK_RETRY_COUNT"] = fmt.Sprintf("%d", attempt)
	if port != 0 {
		merged["PORT"] = fmt.Sprintf("%d", port)
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

// signalSupported reports whether sig is usable on this platform; kept as a
// narrow seam so Windows builds (not exercised in this pack) can stub it.
func signalSupported(sig syscall.Signal) bool {
	return true
}
